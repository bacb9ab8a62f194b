package ecode

// 错误码，0 表示成功
const (
	Success = 0

	// 通用错误
	Unknown        = 10000
	RequireAuthErr = 10001
	BadRequest     = 10002

	// 交易核心错误
	GatewayError        = 20001 // 交易所网络/API 失败
	InvalidInput        = 20002 // 非正价格/数量、未知币对
	InsufficientBalance = 20003 // 卖出超过持仓
	InsufficientData    = 20004 // 价格样本不足
)

var messages = map[int]string{
	Success:             "success",
	Unknown:             "unknown error",
	RequireAuthErr:      "require auth",
	BadRequest:          "bad request",
	GatewayError:        "gateway error",
	InvalidInput:        "invalid input",
	InsufficientBalance: "insufficient balance",
	InsufficientData:    "insufficient data",
}

// Text 返回错误码的默认描述
func Text(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[Unknown]
}
