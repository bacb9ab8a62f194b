package signal

import (
	"context"
	"sync"
	"time"

	"spotflow/internal/model"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type pendingSignal struct {
	action   model.Action
	strategy string
	at       time.Time
}

// Inbox 保存每个币对最新的外部信号，每个信号只会被消费一次
type Inbox struct {
	mu       sync.Mutex
	expiry   time.Duration
	signals  map[string]pendingSignal
	prices   map[string][2]decimal.Decimal // [上一次, 最新]
	samples  map[string]int
	validate *validator.Validate
	now      func() time.Time
}

func NewInbox(expiry time.Duration) *Inbox {
	return &Inbox{
		expiry:   expiry,
		signals:  make(map[string]pendingSignal),
		prices:   make(map[string][2]decimal.Decimal),
		samples:  make(map[string]int),
		validate: validator.New(),
		now:      time.Now,
	}
}

// Push 接收一条信号，覆盖该币对尚未消费的旧信号
func (in *Inbox) Push(msg model.SignalMessage) error {
	if err := in.validate.Struct(msg); err != nil {
		return errors.Wrap(err, ecode.InvalidInput, "invalid signal")
	}
	action, err := model.ParseAction(msg.Action)
	if err != nil {
		return errors.Wrap(err, ecode.InvalidInput, "invalid signal action")
	}

	now := in.now()
	if msg.IsExpired(now, in.expiry) {
		return errors.Newf(ecode.InvalidInput, "signal expired: %s %s at %s", msg.Symbol, msg.Action, msg.Timestamp.Format(time.RFC3339))
	}

	symbol := normalize(msg.Symbol)
	in.mu.Lock()
	defer in.mu.Unlock()
	// 乱序到达的旧信号不覆盖新信号
	if cur, ok := in.signals[symbol]; ok && cur.at.After(msg.Timestamp) {
		return nil
	}
	in.signals[symbol] = pendingSignal{action: action, strategy: msg.Strategy, at: msg.Timestamp}
	if msg.Price > 0 {
		in.observeLocked(symbol, decimal.NewFromFloat(msg.Price))
	}
	return nil
}

// Next 取出该币对的信号，没有或已过期时返回 Hold
func (in *Inbox) Next(_ context.Context, symbol string) (model.Action, error) {
	symbol = normalize(symbol)
	in.mu.Lock()
	defer in.mu.Unlock()
	sig, ok := in.signals[symbol]
	if !ok {
		return model.ActHold, nil
	}
	delete(in.signals, symbol)
	if in.expiry > 0 && in.now().Sub(sig.at) > in.expiry {
		return model.ActHold, nil
	}
	return sig.action, nil
}

// ObservePrice 记录一次价格采样
func (in *Inbox) ObservePrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.observeLocked(normalize(symbol), price)
}

func (in *Inbox) observeLocked(symbol string, price decimal.Decimal) {
	p := in.prices[symbol]
	in.prices[symbol] = [2]decimal.Decimal{p[1], price}
	in.samples[symbol]++
}

// LastPrice 最近一次采样的价格
func (in *Inbox) LastPrice(symbol string) (decimal.Decimal, bool) {
	symbol = normalize(symbol)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.samples[symbol] == 0 {
		return decimal.Zero, false
	}
	return in.prices[symbol][1], true
}

// PriceChange 最近两次采样的涨跌幅 (last-prev)/prev，采样不足两次返回 InsufficientData
func (in *Inbox) PriceChange(symbol string) (decimal.Decimal, error) {
	symbol = normalize(symbol)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.samples[symbol] < 2 {
		return decimal.Zero, errors.Newf(ecode.InsufficientData, "not enough price samples for %s", symbol)
	}
	p := in.prices[symbol]
	return p[1].Sub(p[0]).Div(p[0]), nil
}

// BTCUSDT、btc-usdt 统一为 BTC/USDT
func normalize(symbol string) string {
	return utils.FormatSymbol(symbol)
}
