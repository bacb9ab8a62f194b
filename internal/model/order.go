package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

type OrderType string

const (
	// 市价
	Market OrderType = "market"
	// 限价
	Limit OrderType = "limit"
)

// OrderStatus 交易所侧的订单状态
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderClosed   OrderStatus = "closed"
	OrderCanceled OrderStatus = "canceled"
	OrderUnknown  OrderStatus = "unknown"
)

// Action 信号或风控给出的动作
type Action int

const (
	ActHold Action = iota
	ActBuy
	ActSell
)

func (a Action) String() string {
	switch a {
	case ActBuy:
		return "buy"
	case ActSell:
		return "sell"
	default:
		return "hold"
	}
}

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return ActBuy, nil
	case "sell":
		return ActSell, nil
	case "hold", "":
		return ActHold, nil
	}
	return ActHold, fmt.Errorf("invalid action: %s", s)
}

// Side 动作对应的下单方向，Hold 没有方向
func (a Action) Side() (OrderSide, bool) {
	switch a {
	case ActBuy:
		return Buy, true
	case ActSell:
		return Sell, true
	}
	return "", false
}

// OrderIntent 一次下单意图，只被订单协调器消费一次
type OrderIntent struct {
	Symbol    string
	Side      OrderSide
	OrderType OrderType
	Quantity  decimal.Decimal
	Price     decimal.Decimal // 限价单使用，市价单为0
}

type Ticker struct {
	Symbol string
	Last   decimal.Decimal
}

// OpenOrder 未成交挂单，Cost 为占用的计价币金额
type OpenOrder struct {
	OrderID string
	Symbol  string
	Side    OrderSide
	Cost    decimal.Decimal
}

// 用于记录订单的接口
type OrderRecord struct {
	ID        uint      `gorm:"column:id;primary_key;" json:"id"` // 主键id，自增长，不用设置
	OrderId   string    `gorm:"column:order_id;index" json:"order_id"`
	Symbol    string    `gorm:"column:symbol" json:"symbol"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	Side      OrderSide       `gorm:"column:side" json:"side"`
	OrderType OrderType       `gorm:"column:order_type" json:"order_type"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(30,12)" json:"price"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:decimal(30,12)" json:"quantity"`
	State     string          `gorm:"column:state" json:"state"`
	Comment   string          `gorm:"column:comment" json:"comment"`
}

func (OrderRecord) TableName() string {
	return "order_record"
}

// FillRecord 记账成功的成交，包含成交后的仓位快照
type FillRecord struct {
	ID        uint      `gorm:"column:id;primary_key;" json:"id"`
	OrderId   string    `gorm:"column:order_id;index" json:"order_id"`
	Symbol    string    `gorm:"column:symbol;index" json:"symbol"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	Side      OrderSide       `gorm:"column:side" json:"side"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:decimal(30,12)" json:"quantity"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(30,12)" json:"price"`
	FeeRate   decimal.Decimal `gorm:"column:fee_rate;type:decimal(10,6)" json:"fee_rate"`
	Synthetic bool            `gorm:"column:synthetic" json:"synthetic"` // 撤单清仓产生的模拟成交

	Balance        decimal.Decimal `gorm:"column:balance;type:decimal(30,12)" json:"balance"`
	AverageCost    decimal.Decimal `gorm:"column:average_cost;type:decimal(30,12)" json:"average_cost"`
	RealizedProfit decimal.Decimal `gorm:"column:realized_profit;type:decimal(30,12)" json:"realized_profit"`
}

func (FillRecord) TableName() string {
	return "fill_record"
}
