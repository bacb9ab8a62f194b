package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"spotflow/internal/model"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type simOrder struct {
	id       string
	symbol   string
	side     model.OrderSide
	quantity decimal.Decimal
	price    decimal.Decimal
	status   model.OrderStatus
}

// Simulated 模拟交易所（模拟盘和单元测试使用）
// 市价单按最新价立即成交，限价单在价格穿越挂单价时成交
// 与真实现货交易所一致，挂单占用的资产不能再用于其他订单
type Simulated struct {
	mu       sync.Mutex
	orders   map[string]*simOrder
	prices   map[string]decimal.Decimal
	balances map[string]decimal.Decimal
	feeRate  decimal.Decimal
	// 价格随机游走，适合本地联调
	walk bool
	rnd  *rand.Rand
	// 注入的失败，按操作名消费一次
	failures map[string][]error
}

// 操作名，用于 FailNext
const (
	OpFetchBalance     = "fetch_balance"
	OpFetchTicker      = "fetch_ticker"
	OpFetchOpenOrders  = "fetch_open_orders"
	OpCreateMarket     = "create_market_order"
	OpCreateLimit      = "create_limit_order"
	OpCancelOrder      = "cancel_order"
	OpFetchOrderStatus = "fetch_order_status"
)

func NewSimulated(feeRate decimal.Decimal) *Simulated {
	return &Simulated{
		orders:   make(map[string]*simOrder),
		prices:   make(map[string]decimal.Decimal),
		balances: make(map[string]decimal.Decimal),
		feeRate:  feeRate,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		failures: make(map[string][]error),
	}
}

// EnableRandomWalk 每次取价时模拟 ±0.5% 的波动
func (s *Simulated) EnableRandomWalk() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walk = true
}

// SetPrice 设置价格，并撮合被穿越的限价单
func (s *Simulated) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
	s.matchLocked(symbol)
}

func (s *Simulated) Deposit(asset string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = s.balances[asset].Add(amount)
}

func (s *Simulated) Balance(asset string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[asset]
}

// FailNext 下一次 op 调用返回 err
func (s *Simulated) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

func (s *Simulated) failLocked(op string) error {
	errs := s.failures[op]
	if len(errs) == 0 {
		return nil
	}
	s.failures[op] = errs[1:]
	return errs[0]
}

func (s *Simulated) FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpFetchBalance); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out, nil
}

func (s *Simulated) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpFetchTicker); err != nil {
		return model.Ticker{}, err
	}

	price, ok := s.prices[symbol]
	if !ok {
		if !s.walk {
			return model.Ticker{}, errors.Newf(ecode.InvalidInput, "no price for %s", symbol)
		}
		// 如果没有初始化，随机一个价格并记录
		price = decimal.NewFromFloat(10000 + s.rnd.Float64()*2000)
	}
	if s.walk {
		fluctuation := price.Mul(decimal.NewFromFloat(s.rnd.Float64()*0.01 - 0.005))
		price = price.Add(fluctuation).Round(8)
	}
	s.prices[symbol] = price
	s.matchLocked(symbol)
	return model.Ticker{Symbol: symbol, Last: price}, nil
}

func (s *Simulated) FetchOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpFetchOpenOrders); err != nil {
		return nil, err
	}
	var out []model.OpenOrder
	for _, o := range s.orders {
		if o.symbol != symbol || o.status != model.OrderOpen {
			continue
		}
		out = append(out, model.OpenOrder{
			OrderID: o.id,
			Symbol:  o.symbol,
			Side:    o.side,
			Cost:    o.quantity.Mul(o.price),
		})
	}
	return out, nil
}

func (s *Simulated) CreateMarketOrder(ctx context.Context, symbol string, side model.OrderSide, quantity decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpCreateMarket); err != nil {
		return "", err
	}
	if err := checkOrder(side, quantity); err != nil {
		return "", err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return "", errors.Newf(ecode.InvalidInput, "no price for %s", symbol)
	}

	o := &simOrder{id: uuid.NewString(), symbol: symbol, side: side, quantity: quantity, price: price}
	if err := s.settleLocked(o, price); err != nil {
		return "", err
	}
	s.orders[o.id] = o
	return o.id, nil
}

func (s *Simulated) CreateLimitOrder(ctx context.Context, symbol string, side model.OrderSide, quantity, price decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpCreateLimit); err != nil {
		return "", err
	}
	if err := checkOrder(side, quantity); err != nil {
		return "", err
	}
	if !price.IsPositive() {
		return "", errors.Newf(ecode.InvalidInput, "invalid limit price %s", price)
	}
	if _, _, err := SplitSymbol(symbol); err != nil {
		return "", err
	}

	o := &simOrder{
		id:       uuid.NewString(),
		symbol:   symbol,
		side:     side,
		quantity: quantity,
		price:    price,
		status:   model.OrderOpen,
	}
	s.orders[o.id] = o
	s.matchLocked(symbol)
	return o.id, nil
}

func (s *Simulated) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpCancelOrder); err != nil {
		return err
	}
	o, ok := s.orders[orderID]
	if !ok || o.symbol != symbol {
		return errors.Newf(ecode.InvalidInput, "order not found: %s", orderID)
	}
	if o.status == model.OrderOpen {
		o.status = model.OrderCanceled
	}
	return nil
}

func (s *Simulated) FetchOrderStatus(ctx context.Context, symbol, orderID string) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(OpFetchOrderStatus); err != nil {
		return model.OrderUnknown, err
	}
	o, ok := s.orders[orderID]
	if !ok || o.symbol != symbol {
		return model.OrderUnknown, nil
	}
	return o.status, nil
}

func checkOrder(side model.OrderSide, quantity decimal.Decimal) error {
	if !side.Valid() {
		return errors.Newf(ecode.InvalidInput, "invalid side %s", side)
	}
	if !quantity.IsPositive() {
		return errors.Newf(ecode.InvalidInput, "invalid quantity %s", quantity)
	}
	return nil
}

// 撮合被当前价格穿越的限价单
func (s *Simulated) matchLocked(symbol string) {
	last, ok := s.prices[symbol]
	if !ok {
		return
	}
	for _, o := range s.orders {
		if o.symbol != symbol || o.status != model.OrderOpen {
			continue
		}
		crossed := (o.side == model.Buy && last.LessThanOrEqual(o.price)) ||
			(o.side == model.Sell && last.GreaterThanOrEqual(o.price))
		if !crossed {
			continue
		}
		// 余额不足的挂单保持 open
		_ = s.settleLocked(o, o.price)
	}
}

// 其他挂单冻结后的可用余额，except 为正在结算的订单本身
func (s *Simulated) freeLocked(asset string, except *simOrder) decimal.Decimal {
	free := s.balances[asset]
	for _, o := range s.orders {
		if o == except || o.status != model.OrderOpen {
			continue
		}
		base, quote, err := SplitSymbol(o.symbol)
		if err != nil {
			continue
		}
		if o.side == model.Sell && base == asset {
			free = free.Sub(o.quantity)
		}
		if o.side == model.Buy && quote == asset {
			free = free.Sub(o.quantity.Mul(o.price))
		}
	}
	return free
}

// 按成交价结算余额，手续费以计价币扣除
func (s *Simulated) settleLocked(o *simOrder, price decimal.Decimal) error {
	base, quote, err := SplitSymbol(o.symbol)
	if err != nil {
		return err
	}
	notional := o.quantity.Mul(price)
	fee := notional.Mul(s.feeRate)

	switch o.side {
	case model.Buy:
		cost := notional.Add(fee)
		if free := s.freeLocked(quote, o); free.LessThan(cost) {
			return errors.Newf(ecode.InsufficientBalance, "insufficient %s: need %s free %s", quote, cost, free)
		}
		s.balances[quote] = s.balances[quote].Sub(cost)
		s.balances[base] = s.balances[base].Add(o.quantity)
	case model.Sell:
		if free := s.freeLocked(base, o); free.LessThan(o.quantity) {
			return errors.Newf(ecode.InsufficientBalance, "insufficient %s: need %s free %s", base, o.quantity, free)
		}
		s.balances[base] = s.balances[base].Sub(o.quantity)
		s.balances[quote] = s.balances[quote].Add(notional.Sub(fee))
	}
	o.status = model.OrderClosed
	return nil
}
