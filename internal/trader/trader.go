package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spotflow/conf"
	"spotflow/internal/exchange"
	"spotflow/internal/model"
	"spotflow/internal/order"
	"spotflow/internal/risk"
	"spotflow/internal/signal"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	Pairs         []string
	Interval      time.Duration
	QuoteCurrency string
	// 同时处理的币对数，1 为顺序执行
	Concurrency int
	// 买入后挂止盈限价卖单
	TakeProfitLimit bool
}

func ConfigFromConf(c conf.TradingConfig) Config {
	return Config{
		Pairs:           c.Pairs,
		Interval:        c.Interval,
		QuoteCurrency:   c.QuoteCurrency,
		Concurrency:     c.Concurrency,
		TakeProfitLimit: c.TakeProfitLimit,
	}
}

// PriceObserver 接收每个周期的最新价格
type PriceObserver interface {
	ObservePrice(symbol string, price decimal.Decimal)
}

// Trader 定时为每个币对执行：对账 -> 止盈止损 -> 信号下单
type Trader struct {
	cfg      Config
	gw       exchange.Gateway
	coord    *order.Coordinator
	sizer    *risk.Sizer
	source   signal.Source
	observer PriceObserver
}

func New(cfg Config, gw exchange.Gateway, coord *order.Coordinator, sizer *risk.Sizer, source signal.Source) *Trader {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	t := &Trader{cfg: cfg, gw: gw, coord: coord, sizer: sizer, source: source}
	if obs, ok := source.(PriceObserver); ok {
		t.observer = obs
	}
	return t
}

// Run 立即执行一次，之后每个 Interval 执行一次，直到 ctx 结束
func (t *Trader) Run(ctx context.Context) error {
	logger.Infof("[Trader] 启动, pairs=%v interval=%s", t.cfg.Pairs, t.cfg.Interval)
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := t.Tick(ctx); err != nil {
			logger.Errorf("[Trader] 本轮存在错误: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.Infof("[Trader] 已停止")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick 执行一轮，返回本轮所有币对的错误
func (t *Trader) Tick(ctx context.Context) error {
	errs := t.coord.Reconcile(ctx)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	// 并发处理多个交易对，但限制并发数
	semaphore := make(chan struct{}, t.cfg.Concurrency)
	for _, symbol := range t.cfg.Pairs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(sym string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := t.runForSymbol(ctx, sym); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", sym, err))
				mu.Unlock()
			}
		}(symbol)
	}
	wg.Wait()
	return errs
}

// 为单个交易对运行策略
func (t *Trader) runForSymbol(ctx context.Context, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Trader] 交易对 %s 处理出错: %v", symbol, r)
			err = errors.Newf(ecode.Unknown, "panic: %v", r)
		}
	}()

	tk, err := t.gw.FetchTicker(ctx, symbol)
	if err != nil {
		return err
	}
	price := tk.Last
	if t.observer != nil {
		t.observer.ObservePrice(symbol, price)
	}

	pos := t.coord.Ledger().GetOrCreate(symbol)
	if !pos.IsFlat() && t.sizer.Check(pos, price) == model.ActSell {
		logger.Infof("[Trader] %s 触发%s, 均价 %s 现价 %s, 卖出 %s",
			symbol, t.sizer.Reason(pos, price), pos.AverageCost, price, pos.Balance)
		return t.sellAll(ctx, symbol)
	}

	action, err := t.source.Next(ctx, symbol)
	if err != nil {
		return err
	}

	switch action {
	case model.ActBuy:
		return t.buy(ctx, symbol, price)
	case model.ActSell:
		if pos.IsFlat() {
			logger.Infof("[Trader] %s 卖出信号，但没有持仓", symbol)
			return nil
		}
		return t.sellAll(ctx, symbol)
	default:
		logger.Debugf("[Trader] %s hold @ %s", symbol, price)
		return nil
	}
}

// 市价卖出全部持仓，先撤销该币对的挂单（如止盈单）释放被冻结的币
func (t *Trader) sellAll(ctx context.Context, symbol string) error {
	errs := t.coord.CancelPending(ctx, symbol)

	// 撤单时可能确认了新的成交，重新读取持仓
	pos := t.coord.Ledger().GetOrCreate(symbol)
	if pos.IsFlat() {
		return errs
	}
	_, err := t.coord.SubmitMarket(ctx, symbol, model.Sell, pos.Balance)
	return multierr.Append(errs, err)
}

func (t *Trader) buy(ctx context.Context, symbol string, price decimal.Decimal) error {
	quote := t.cfg.QuoteCurrency
	if _, q, err := exchange.SplitSymbol(symbol); err == nil {
		quote = q
	}

	balances, err := t.gw.FetchBalance(ctx)
	if err != nil {
		return err
	}
	openOrders, err := t.gw.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	openNotional := decimal.Zero
	for _, o := range openOrders {
		openNotional = openNotional.Add(o.Cost)
	}

	available := balances[quote]
	size, err := t.sizer.Size(available, openNotional, price)
	if err != nil {
		return err
	}
	logger.Infof("[Trader] %s 买入信号, 可用 %s %s, 挂单占用 %s, 数量 %s @ %s",
		symbol, available, quote, openNotional, size, price)

	res, err := t.coord.Submit(ctx, model.OrderIntent{
		Symbol:    symbol,
		Side:      model.Buy,
		OrderType: model.Market,
		Quantity:  size,
	})
	if err != nil || res.State != order.StateConfirmed || !t.cfg.TakeProfitLimit {
		return err
	}

	tp := t.sizer.TakeProfitPrice(price)
	_, err = t.coord.Submit(ctx, model.OrderIntent{
		Symbol:    symbol,
		Side:      model.Sell,
		OrderType: model.Limit,
		Quantity:  size,
		Price:     tp,
	})
	return err
}
