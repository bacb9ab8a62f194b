package position

import (
	"sort"
	"sync"
	"time"

	"spotflow/internal/model"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"

	"github.com/shopspring/decimal"
)

// Position 单个币对的持仓
type Position struct {
	Symbol         string          `json:"symbol"`
	Balance        decimal.Decimal `json:"balance"`         // 持有数量，>= 0
	AverageCost    decimal.Decimal `json:"average_cost"`    // 含手续费的加权平均成本
	RealizedProfit decimal.Decimal `json:"realized_profit"` // 累计已实现盈亏，可为负
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CapitalAtRisk 持仓成本 average_cost * balance
func (p Position) CapitalAtRisk() decimal.Decimal {
	return p.AverageCost.Mul(p.Balance)
}

// Unrealized 按当前价格计算的浮动盈亏
func (p Position) Unrealized(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.AverageCost).Mul(p.Balance)
}

func (p Position) IsFlat() bool {
	return !p.Balance.IsPositive()
}

type entry struct {
	mu  sync.Mutex
	pos Position
}

// Ledger 仓位账本，所有修改只能通过 ApplyFill
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (l *Ledger) entry(symbol string) *entry {
	l.mu.RLock()
	e, ok := l.entries[symbol]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[symbol]; ok {
		return e
	}
	e = &entry{pos: Position{Symbol: symbol}}
	l.entries[symbol] = e
	return e
}

// GetOrCreate 获取仓位，不存在则创建空仓位
func (l *Ledger) GetOrCreate(symbol string) Position {
	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// ApplyFill 记一笔成交，返回成交后的仓位
func (l *Ledger) ApplyFill(symbol string, side model.OrderSide, quantity, price, feeRate decimal.Decimal) (Position, error) {
	if symbol == "" {
		return Position{}, errors.New(ecode.InvalidInput, "empty symbol")
	}
	if !quantity.IsPositive() {
		return Position{}, errors.Newf(ecode.InvalidInput, "quantity must be positive: %s", quantity)
	}
	if !price.IsPositive() {
		return Position{}, errors.Newf(ecode.InvalidInput, "price must be positive: %s", price)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Position{}, errors.Newf(ecode.InvalidInput, "fee rate out of range [0,1): %s", feeRate)
	}

	e := l.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.pos
	notional := quantity.Mul(price)
	fee := notional.Mul(feeRate)

	switch side {
	case model.Buy:
		totalCost := notional.Add(fee)
		newBalance := pos.Balance.Add(quantity)
		if newBalance.IsZero() {
			pos.AverageCost = decimal.Zero
		} else {
			pos.AverageCost = pos.AverageCost.Mul(pos.Balance).Add(totalCost).Div(newBalance)
		}
		pos.Balance = newBalance
	case model.Sell:
		if quantity.GreaterThan(pos.Balance) {
			return pos, errors.Newf(ecode.InsufficientBalance,
				"sell %s %s exceeds balance %s", quantity, symbol, pos.Balance)
		}
		proceeds := notional.Sub(fee)
		pos.RealizedProfit = pos.RealizedProfit.Add(proceeds.Sub(pos.AverageCost.Mul(quantity)))
		// 卖出不重算均价，剩余持仓沿用原成本
		pos.Balance = pos.Balance.Sub(quantity)
	default:
		return pos, errors.Newf(ecode.InvalidInput, "invalid side: %s", side)
	}

	pos.UpdatedAt = l.now()
	e.pos = pos
	return pos, nil
}

// Snapshot 所有仓位的拷贝，按币对排序
func (l *Ledger) Snapshot() []Position {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.pos)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
