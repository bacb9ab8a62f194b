package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"spotflow/internal/exchange"
	"spotflow/internal/model"
	"spotflow/internal/position"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// State 一次提交的状态 Pending -> Submitted -> {Confirmed, Rejected, Cancelled}
type State string

const (
	StatePending   State = "pending"
	StateSubmitted State = "submitted"
	StateConfirmed State = "confirmed"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
)

// Result 提交结果，Fill 为记账后的仓位，未记账时为 nil
type Result struct {
	OrderID string             `json:"order_id"`
	Symbol  string             `json:"symbol"`
	Side    model.OrderSide    `json:"side"`
	State   State              `json:"state"`
	Fill    *position.Position `json:"fill,omitempty"`
}

// PendingOrder 已提交但尚未记账的订单，由 Reconcile 轮询
// 包括未成交的限价单，以及已提交但未取到成交价的市价单
type PendingOrder struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      model.OrderSide `json:"side"`
	OrderType model.OrderType `json:"order_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// Coordinator 负责下单、撤单以及成交后更新账本
// 同一币对从提交到记账期间持有该币对的锁
type Coordinator struct {
	gw      exchange.Gateway
	ledger  *position.Ledger
	feeRate decimal.Decimal
	journal Journal

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]PendingOrder
	now     func() time.Time
}

type Option func(*Coordinator)

func WithJournal(j Journal) Option {
	return func(c *Coordinator) {
		if j != nil {
			c.journal = j
		}
	}
}

func NewCoordinator(gw exchange.Gateway, ledger *position.Ledger, feeRate decimal.Decimal, opts ...Option) *Coordinator {
	c := &Coordinator{
		gw:      gw,
		ledger:  ledger,
		feeRate: feeRate,
		journal: nopJournal{},
		locks:   make(map[string]*sync.Mutex),
		pending: make(map[string]PendingOrder),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Ledger() *position.Ledger {
	return c.ledger
}

func (c *Coordinator) lock(symbol string) func() {
	c.mu.Lock()
	l, ok := c.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		c.locks[symbol] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func validate(symbol string, side model.OrderSide, quantity decimal.Decimal) error {
	if symbol == "" {
		return errors.New(ecode.InvalidInput, "empty symbol")
	}
	if !side.Valid() {
		return errors.Newf(ecode.InvalidInput, "invalid side: %s", side)
	}
	if !quantity.IsPositive() {
		return errors.Newf(ecode.InvalidInput, "quantity must be positive: %s", quantity)
	}
	return nil
}

func gatewayErr(err error, format string, args ...any) error {
	if errors.Code(err) == ecode.GatewayError {
		return err
	}
	return errors.Wrapf(err, ecode.GatewayError, format, args...)
}

// SubmitMarket 市价单，成功后按最新价记一笔完整成交
// 已提交但取价失败时返回 Submitted，订单进入待记账列表，由 Reconcile 补记
func (c *Coordinator) SubmitMarket(ctx context.Context, symbol string, side model.OrderSide, quantity decimal.Decimal) (Result, error) {
	res := Result{Symbol: symbol, Side: side, State: StatePending}
	if err := validate(symbol, side, quantity); err != nil {
		res.State = StateRejected
		return res, err
	}

	unlock := c.lock(symbol)
	defer unlock()

	id, err := c.gw.CreateMarketOrder(ctx, symbol, side, quantity)
	if err != nil {
		logger.Errorf("[Order] 市价单提交失败 %s %s %s: %v", side, quantity, symbol, err)
		res.State = StateRejected
		c.recordOrder(ctx, res, model.Market, quantity, decimal.Zero, err.Error())
		return res, gatewayErr(err, "create market order %s", symbol)
	}
	res.OrderID = id
	res.State = StateSubmitted
	c.recordOrder(ctx, res, model.Market, quantity, decimal.Zero, "")

	ticker, err := c.gw.FetchTicker(ctx, symbol)
	if err != nil {
		logger.Warnf("[Order] 市价单 %s 已提交但获取价格失败，等待对账: %v", id, err)
		c.addPending(PendingOrder{
			OrderID:   id,
			Symbol:    symbol,
			Side:      side,
			OrderType: model.Market,
			Quantity:  quantity,
			CreatedAt: c.now(),
		})
		return res, nil
	}

	pos, err := c.applyFill(ctx, id, symbol, side, quantity, ticker.Last, false)
	if err != nil {
		res.State = StateRejected
		return res, err
	}
	res.State = StateConfirmed
	res.Fill = &pos
	logger.Infof("[Order] 市价单成交 %s %s %s @ %s, 持仓 %s", side, quantity, symbol, ticker.Last, pos.Balance)
	return res, nil
}

// SubmitLimit 限价单，立即成交则记账，否则进入待成交列表
func (c *Coordinator) SubmitLimit(ctx context.Context, symbol string, side model.OrderSide, quantity, price decimal.Decimal) (Result, error) {
	res := Result{Symbol: symbol, Side: side, State: StatePending}
	if err := validate(symbol, side, quantity); err != nil {
		res.State = StateRejected
		return res, err
	}
	if !price.IsPositive() {
		res.State = StateRejected
		return res, errors.Newf(ecode.InvalidInput, "limit price must be positive: %s", price)
	}

	unlock := c.lock(symbol)
	defer unlock()

	id, err := c.gw.CreateLimitOrder(ctx, symbol, side, quantity, price)
	if err != nil {
		logger.Errorf("[Order] 限价单提交失败 %s %s %s @ %s: %v", side, quantity, symbol, price, err)
		res.State = StateRejected
		c.recordOrder(ctx, res, model.Limit, quantity, price, err.Error())
		return res, gatewayErr(err, "create limit order %s", symbol)
	}
	res.OrderID = id
	res.State = StateSubmitted
	c.recordOrder(ctx, res, model.Limit, quantity, price, "")

	po := PendingOrder{
		OrderID:   id,
		Symbol:    symbol,
		Side:      side,
		OrderType: model.Limit,
		Quantity:  quantity,
		Price:     price,
		CreatedAt: c.now(),
	}

	status, err := c.gw.FetchOrderStatus(ctx, symbol, id)
	if err != nil {
		// 状态未知，交给 Reconcile
		logger.Warnf("[Order] 限价单 %s 状态查询失败，等待对账: %v", id, err)
		c.addPending(po)
		return res, nil
	}

	switch status {
	case model.OrderClosed:
		pos, err := c.fillAtMarket(ctx, po)
		if err != nil {
			// 取价失败交给 Reconcile，记账失败不再重试
			if errors.Code(err) == ecode.GatewayError {
				c.addPending(po)
			}
			return res, err
		}
		res.State = StateConfirmed
		res.Fill = &pos
	case model.OrderCanceled:
		res.State = StateCancelled
	default:
		c.addPending(po)
		logger.Infof("[Order] 限价单挂单中 %s %s %s @ %s id=%s", side, quantity, symbol, price, id)
	}
	return res, nil
}

// Cancel 仅撤销交易所挂单，不改动账本
func (c *Coordinator) Cancel(ctx context.Context, symbol, orderID string) (Result, error) {
	unlock := c.lock(symbol)
	defer unlock()

	res := Result{OrderID: orderID, Symbol: symbol}
	if err := c.gw.CancelOrder(ctx, symbol, orderID); err != nil {
		logger.Errorf("[Order] 撤单失败 %s %s: %v", symbol, orderID, err)
		res.State = StateRejected
		return res, gatewayErr(err, "cancel order %s", orderID)
	}
	if po, ok := c.removePending(orderID); ok {
		res.Side = po.Side
	}
	res.State = StateCancelled
	logger.Infof("[Order] 已撤单 %s %s", symbol, orderID)
	return res, nil
}

// CancelAndFlatten 撤单后按最新价把该币对全部持仓记为卖出（不向交易所下单）
func (c *Coordinator) CancelAndFlatten(ctx context.Context, symbol, orderID string) (Result, error) {
	unlock := c.lock(symbol)
	defer unlock()

	res := Result{OrderID: orderID, Symbol: symbol, Side: model.Sell}
	if err := c.gw.CancelOrder(ctx, symbol, orderID); err != nil {
		logger.Errorf("[Order] 撤单失败 %s %s: %v", symbol, orderID, err)
		res.State = StateRejected
		return res, gatewayErr(err, "cancel order %s", orderID)
	}
	c.removePending(orderID)
	res.State = StateCancelled

	pos := c.ledger.GetOrCreate(symbol)
	if pos.IsFlat() {
		res.Fill = &pos
		return res, nil
	}

	ticker, err := c.gw.FetchTicker(ctx, symbol)
	if err != nil {
		logger.Errorf("[Order] 撤单 %s 后获取价格失败，未清仓: %v", orderID, err)
		return res, gatewayErr(err, "fetch ticker %s", symbol)
	}
	pos, err = c.applyFill(ctx, orderID, symbol, model.Sell, pos.Balance, ticker.Last, true)
	if err != nil {
		return res, err
	}
	res.Fill = &pos
	logger.Infof("[Order] 撤单清仓 %s @ %s, 已实现盈亏 %s", symbol, ticker.Last, pos.RealizedProfit)
	return res, nil
}

// Reconcile 轮询所有待记账订单，查询或取价失败的保留到下一轮
func (c *Coordinator) Reconcile(ctx context.Context) error {
	var errs error
	for _, po := range c.Pending() {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, c.reconcileOne(ctx, po))
	}
	return errs
}

func (c *Coordinator) reconcileOne(ctx context.Context, po PendingOrder) error {
	unlock := c.lock(po.Symbol)
	defer unlock()

	// 可能已被并发撤单
	if _, ok := c.pendingOrder(po.OrderID); !ok {
		return nil
	}

	status, err := c.gw.FetchOrderStatus(ctx, po.Symbol, po.OrderID)
	if err != nil {
		logger.Warnf("[Order] 对账查询失败 %s %s: %v", po.Symbol, po.OrderID, err)
		return gatewayErr(err, "fetch order status %s", po.OrderID)
	}

	return c.resolveLocked(ctx, po, status)
}

// 按交易所状态处理待记账订单，调用方持有该币对的锁
func (c *Coordinator) resolveLocked(ctx context.Context, po PendingOrder, status model.OrderStatus) error {
	switch status {
	case model.OrderClosed:
		if _, err := c.fillAtMarket(ctx, po); err != nil {
			if errors.Code(err) == ecode.GatewayError {
				return err
			}
			// 账本拒绝的成交重试也不会成功，丢弃并报警
			c.removePending(po.OrderID)
			logger.Errorf("[Order] 订单 %s %s 已成交但无法记账，已丢弃，需人工核对: %v", po.Symbol, po.OrderID, err)
			return err
		}
		c.removePending(po.OrderID)
	case model.OrderCanceled:
		c.removePending(po.OrderID)
		logger.Infof("[Order] 订单已被撤销 %s %s", po.Symbol, po.OrderID)
	}
	return nil
}

// CancelPending 撤销该币对所有待记账订单，用于全部卖出前释放被挂单冻结的资产
// 撤单后再查一次状态：撤单前已成交的照常记账，仍未确认的保留到下一轮
func (c *Coordinator) CancelPending(ctx context.Context, symbol string) error {
	unlock := c.lock(symbol)
	defer unlock()

	var errs error
	for _, po := range c.Pending() {
		if po.Symbol != symbol {
			continue
		}
		// 市价单无法撤销，只需确认状态
		if po.OrderType != model.Market {
			if err := c.gw.CancelOrder(ctx, symbol, po.OrderID); err != nil {
				logger.Warnf("[Order] 撤单失败 %s %s: %v", symbol, po.OrderID, err)
			}
		}

		status, err := c.gw.FetchOrderStatus(ctx, symbol, po.OrderID)
		if err != nil {
			errs = multierr.Append(errs, gatewayErr(err, "fetch order status %s", po.OrderID))
			continue
		}
		if status == model.OrderOpen || status == model.OrderUnknown {
			errs = multierr.Append(errs, errors.Newf(ecode.GatewayError, "order %s still %s after cancel", po.OrderID, status))
			continue
		}
		errs = multierr.Append(errs, c.resolveLocked(ctx, po, status))
	}
	return errs
}

// Pending 待记账订单快照，按提交时间排序
func (c *Coordinator) Pending() []PendingOrder {
	c.mu.Lock()
	out := make([]PendingOrder, 0, len(c.pending))
	for _, po := range c.pending {
		out = append(out, po)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (c *Coordinator) addPending(po PendingOrder) {
	c.mu.Lock()
	c.pending[po.OrderID] = po
	c.mu.Unlock()
}

func (c *Coordinator) pendingOrder(id string) (PendingOrder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	po, ok := c.pending[id]
	return po, ok
}

func (c *Coordinator) removePending(id string) (PendingOrder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	po, ok := c.pending[id]
	delete(c.pending, id)
	return po, ok
}

// 成交按最新价记账
func (c *Coordinator) fillAtMarket(ctx context.Context, po PendingOrder) (position.Position, error) {
	ticker, err := c.gw.FetchTicker(ctx, po.Symbol)
	if err != nil {
		logger.Errorf("[Order] 限价单 %s 已成交但获取价格失败: %v", po.OrderID, err)
		return position.Position{}, gatewayErr(err, "fetch ticker %s", po.Symbol)
	}
	pos, err := c.applyFill(ctx, po.OrderID, po.Symbol, po.Side, po.Quantity, ticker.Last, false)
	if err != nil {
		return pos, err
	}
	logger.Infof("[Order] %s 单对账成交 %s %s %s @ %s id=%s", po.OrderType, po.Side, po.Quantity, po.Symbol, ticker.Last, po.OrderID)
	return pos, nil
}

func (c *Coordinator) applyFill(ctx context.Context, orderID, symbol string, side model.OrderSide, quantity, price decimal.Decimal, synthetic bool) (position.Position, error) {
	pos, err := c.ledger.ApplyFill(symbol, side, quantity, price, c.feeRate)
	if err != nil {
		logger.Errorf("[Order] 记账失败 %s %s %s %s: %v", orderID, side, quantity, symbol, err)
		return pos, err
	}
	rec := &model.FillRecord{
		OrderId:        orderID,
		Symbol:         symbol,
		CreatedAt:      c.now(),
		Side:           side,
		Quantity:       quantity,
		Price:          price,
		FeeRate:        c.feeRate,
		Synthetic:      synthetic,
		Balance:        pos.Balance,
		AverageCost:    pos.AverageCost,
		RealizedProfit: pos.RealizedProfit,
	}
	if err := c.journal.RecordFill(ctx, rec); err != nil {
		logger.Warnf("[Order] 成交记录写入失败 %s: %v", orderID, err)
	}
	return pos, nil
}

func (c *Coordinator) recordOrder(ctx context.Context, res Result, orderType model.OrderType, quantity, price decimal.Decimal, comment string) {
	rec := &model.OrderRecord{
		OrderId:   res.OrderID,
		Symbol:    res.Symbol,
		CreatedAt: c.now(),
		Side:      res.Side,
		OrderType: orderType,
		Price:     price,
		Quantity:  quantity,
		State:     string(res.State),
		Comment:   comment,
	}
	if err := c.journal.RecordOrder(ctx, rec); err != nil {
		logger.Warnf("[Order] 订单记录写入失败 %s: %v", res.OrderID, err)
	}
}

// Submit 按下单意图分发到市价或限价
func (c *Coordinator) Submit(ctx context.Context, intent model.OrderIntent) (Result, error) {
	switch intent.OrderType {
	case model.Limit:
		return c.SubmitLimit(ctx, intent.Symbol, intent.Side, intent.Quantity, intent.Price)
	case model.Market, "":
		return c.SubmitMarket(ctx, intent.Symbol, intent.Side, intent.Quantity)
	default:
		return Result{Symbol: intent.Symbol, Side: intent.Side, State: StateRejected},
			errors.Newf(ecode.InvalidInput, "invalid order type: %s", intent.OrderType)
	}
}
