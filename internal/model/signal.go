package model

import "time"

/*
来源于外部数据（webhook / kafka）

	{
	  "strategy": "ema-macd",
	  "symbol": "BTC/USDT",
	  "action": "buy",
	  "price": 29500,
	  "timestamp": "2025-08-10T21:54:30+08:00",
	  "comment": "金叉"
	}
*/
type SignalMessage struct {
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol" binding:"required" validate:"required"`
	Action    string    `json:"action" binding:"required,oneof=buy sell hold" validate:"required,oneof=buy sell hold"`
	Price     float64   `json:"price" validate:"gte=0"` // 信号触发时的价格，可为0
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Comment   string    `json:"comment"`
}

// 信号是否过期
func (m SignalMessage) IsExpired(now time.Time, expiry time.Duration) bool {
	if expiry <= 0 {
		return false
	}
	return now.Sub(m.Timestamp) > expiry
}
