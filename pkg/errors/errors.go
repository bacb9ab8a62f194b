package errors

import (
	stderrors "errors"
	"fmt"

	"spotflow/pkg/errors/ecode"
)

// Error 带错误码的错误，Cause 为底层错误
type Error struct {
	Code    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 同错误码的 *Error 视为同一种错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Cause == nil && t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// 错误种类哨兵，配合 errors.Is 使用
var (
	ErrGateway             = &Error{Code: ecode.GatewayError}
	ErrInvalidInput        = &Error{Code: ecode.InvalidInput}
	ErrInsufficientBalance = &Error{Code: ecode.InsufficientBalance}
	ErrInsufficientData    = &Error{Code: ecode.InsufficientData}
)

func New(code int, message string) error {
	return &Error{Code: code, Message: message}
}

func Newf(code int, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 给底层错误附加错误码和描述，err 为 nil 时返回 nil
func Wrap(err error, code int, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

func Wrapf(err error, code int, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Code 取出错误链上第一个错误码，nil 为 Success
func Code(err error) int {
	if err == nil {
		return ecode.Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ecode.Unknown
}

// DecodeErr 解析出错误码和提示信息，用于接口响应
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Text(ecode.Success)
	}
	code := Code(err)
	return code, err.Error()
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
