package main

import api "spotflow/cmd/spotflow"

// 启动服务（交易循环 + webhook）

/*
测试

BODY='{"strategy":"ema-macd","symbol":"BTC/USDT","action":"buy","price":113990,"timestamp":"2025-08-10T21:54:30+08:00"}'
SECRET="ab12cd34ef56abcdef1234567890abcdef1234567890abcdef1234567890"
SIGNATURE=$(echo -n $BODY | openssl dgst -sha256 -hmac $SECRET | sed 's/^.* //')

curl -X POST http://localhost:12180/webhook \
  -H "Content-Type: application/json" \
  -H "X-Signature: $SIGNATURE" \
  -d "$BODY"
*/

func main() {
	api.Execute()
}
