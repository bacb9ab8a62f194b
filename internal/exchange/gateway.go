package exchange

import (
	"context"
	"fmt"
	"time"

	"spotflow/internal/model"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/utils"

	"github.com/shopspring/decimal"
)

// Gateway 交易所能力，所有调用都可能因网络/API失败
type Gateway interface {
	// 各币种可用余额
	FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error)
	// 最新成交价
	FetchTicker(ctx context.Context, symbol string) (model.Ticker, error)
	// 未成交挂单
	FetchOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error)
	CreateMarketOrder(ctx context.Context, symbol string, side model.OrderSide, quantity decimal.Decimal) (string, error)
	CreateLimitOrder(ctx context.Context, symbol string, side model.OrderSide, quantity, price decimal.Decimal) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	FetchOrderStatus(ctx context.Context, symbol, orderID string) (model.OrderStatus, error)
}

// SplitSymbol "BTC/USDT"、"BTC-USDT"、"BTCUSDT" -> BTC, USDT
func SplitSymbol(symbol string) (base, quote string, err error) {
	base, quote, ok := utils.SplitSymbol(symbol)
	if !ok {
		return "", "", errors.Newf(ecode.InvalidInput, "unknown symbol: %s", symbol)
	}
	return base, quote, nil
}

// call 在超时控制下执行不支持 context 的阻塞调用，失败统一转为 GatewayError
func call[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, errors.Wrapf(err, ecode.GatewayError, "%s", op)
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return zero, errors.Wrapf(ctx.Err(), ecode.GatewayError, "%s", op)
	case r := <-ch:
		if r.err != nil {
			return zero, asGatewayError(op, r.err)
		}
		return r.v, nil
	}
}

func asGatewayError(op string, err error) error {
	if errors.Code(err) == ecode.GatewayError {
		return err
	}
	return errors.Wrapf(err, ecode.GatewayError, "%s", op)
}

// timeoutGateway 给每次交易所调用加上超时，超时视为 GatewayError
type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

func WithTimeout(g Gateway, timeout time.Duration) Gateway {
	if timeout <= 0 {
		return g
	}
	return &timeoutGateway{next: g, timeout: timeout}
}

func (t *timeoutGateway) FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return call(ctx, "fetch balance", func() (map[string]decimal.Decimal, error) {
		return t.next.FetchBalance(ctx)
	})
}

func (t *timeoutGateway) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return call(ctx, "fetch ticker "+symbol, func() (model.Ticker, error) {
		return t.next.FetchTicker(ctx, symbol)
	})
}

func (t *timeoutGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return call(ctx, "fetch open orders "+symbol, func() ([]model.OpenOrder, error) {
		return t.next.FetchOpenOrders(ctx, symbol)
	})
}

func (t *timeoutGateway) CreateMarketOrder(ctx context.Context, symbol string, side model.OrderSide, quantity decimal.Decimal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return call(ctx, fmt.Sprintf("create market %s %s", side, symbol), func() (string, error) {
		return t.next.CreateMarketOrder(ctx, symbol, side, quantity)
	})
}

func (t *timeoutGateway) CreateLimitOrder(ctx context.Context, symbol string, side model.OrderSide, quantity, price decimal.Decimal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return call(ctx, fmt.Sprintf("create limit %s %s", side, symbol), func() (string, error) {
		return t.next.CreateLimitOrder(ctx, symbol, side, quantity, price)
	})
}

func (t *timeoutGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	_, err := call(ctx, "cancel order "+orderID, func() (struct{}, error) {
		return struct{}{}, t.next.CancelOrder(ctx, symbol, orderID)
	})
	return err
}

func (t *timeoutGateway) FetchOrderStatus(ctx context.Context, symbol, orderID string) (model.OrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	status, err := call(ctx, "fetch order status "+orderID, func() (model.OrderStatus, error) {
		return t.next.FetchOrderStatus(ctx, symbol, orderID)
	})
	if err != nil {
		return model.OrderUnknown, err
	}
	return status, nil
}
