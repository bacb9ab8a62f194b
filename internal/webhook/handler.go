package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"spotflow/internal/consts"
	"spotflow/internal/model"
	"spotflow/internal/signal"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/logger"

	"github.com/goccy/go-json"
)

// 请求体上限
const maxBodySize = 64 << 10

// ErrSignature 签名缺失或不正确
var ErrSignature = errors.New(ecode.RequireAuthErr, "invalid signature")

// WebhookHandler TradingView 等外部系统 Webhook 的接收器
type WebhookHandler struct {
	inbox  *signal.Inbox
	secret []byte
}

func NewWebhookHandler(inbox *signal.Inbox, secret string) *WebhookHandler {
	return &WebhookHandler{inbox: inbox, secret: []byte(secret)}
}

// Handle 验签、解析信号并写入 Inbox
func (wh *WebhookHandler) Handle(r *http.Request) (model.SignalMessage, error) {
	var sig model.SignalMessage

	// 获取签名
	signature := r.Header.Get(consts.Signature)
	if signature == "" {
		return sig, ErrSignature
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return sig, errors.Wrap(err, ecode.BadRequest, "failed to read body")
	}
	defer r.Body.Close()

	if !VerifySignature(body, signature, wh.secret) {
		return sig, ErrSignature
	}

	if err := json.Unmarshal(body, &sig); err != nil {
		return sig, errors.Wrap(err, ecode.InvalidInput, "invalid json")
	}
	if err := wh.inbox.Push(sig); err != nil {
		logger.Warnf("[Webhook] 信号被拒绝 %s %s: %v", sig.Symbol, sig.Action, err)
		return sig, err
	}
	logger.Infof("[Webhook] Received signal: %s %s strategy=%s price=%v", sig.Symbol, sig.Action, sig.Strategy, sig.Price)
	return sig, nil
}

// Sign 计算 body 的 hex 编码 HMAC-SHA256
func Sign(body, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func VerifySignature(body []byte, signatureHeader string, secret []byte) bool {
	providedMAC, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hmac.Equal(providedMAC, h.Sum(nil))
}
