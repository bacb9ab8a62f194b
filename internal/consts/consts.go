package consts

const (
	// RequestId 请求id名称
	RequestId = "request_id"

	// Signature webhook 请求体的 HMAC-SHA256 签名（hex）
	Signature = "X-Signature"
)
