package exchange

import (
	"context"
	"strings"

	"spotflow/internal/exchange/okx"
	"spotflow/internal/model"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"

	goexmodel "github.com/nntaoli-project/goex/v2/model"
	"github.com/shopspring/decimal"
)

// OkxExchange OKX 现货网关
// goex 的接口不支持 context，每次调用经 call 做超时控制
type OkxExchange struct {
	spot *okx.OkxSpot
}

func NewOkxExchange(c okx.Config) (*OkxExchange, error) {
	spot, err := okx.NewOkxSpot(c)
	if err != nil {
		return nil, errors.Wrap(err, ecode.GatewayError, "init okx spot")
	}
	return &OkxExchange{spot: spot}, nil
}

func (e *OkxExchange) FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error) {
	return call(ctx, "okx fetch balance", func() (map[string]decimal.Decimal, error) {
		bal, err := e.spot.GetBalances()
		if err != nil {
			return nil, err
		}
		out := make(map[string]decimal.Decimal, len(bal))
		for coin, v := range bal {
			out[coin] = decimal.NewFromFloat(v)
		}
		return out, nil
	})
}

func (e *OkxExchange) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	return call(ctx, "okx fetch ticker "+symbol, func() (model.Ticker, error) {
		last, err := e.spot.GetLastPrice(symbol)
		if err != nil {
			return model.Ticker{}, err
		}
		return model.Ticker{Symbol: symbol, Last: decimal.NewFromFloat(last)}, nil
	})
}

func (e *OkxExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]model.OpenOrder, error) {
	return call(ctx, "okx fetch open orders "+symbol, func() ([]model.OpenOrder, error) {
		orders, err := e.spot.GetPendingOrders(symbol)
		if err != nil {
			return nil, err
		}
		out := make([]model.OpenOrder, 0, len(orders))
		for _, o := range orders {
			remaining := decimal.NewFromFloat(o.Qty).Sub(decimal.NewFromFloat(o.ExecutedQty))
			if remaining.IsNegative() {
				remaining = decimal.Zero
			}
			out = append(out, model.OpenOrder{
				OrderID: o.Id,
				Symbol:  symbol,
				Side:    fromGoexSide(o.Side),
				Cost:    remaining.Mul(decimal.NewFromFloat(o.Price)),
			})
		}
		return out, nil
	})
}

func (e *OkxExchange) CreateMarketOrder(ctx context.Context, symbol string, side model.OrderSide, quantity decimal.Decimal) (string, error) {
	return call(ctx, "okx create market order "+symbol, func() (string, error) {
		return e.spot.PlaceOrder(symbol, string(side), goexmodel.OrderType_Market, quantity.InexactFloat64(), 0)
	})
}

func (e *OkxExchange) CreateLimitOrder(ctx context.Context, symbol string, side model.OrderSide, quantity, price decimal.Decimal) (string, error) {
	return call(ctx, "okx create limit order "+symbol, func() (string, error) {
		return e.spot.PlaceOrder(symbol, string(side), goexmodel.OrderType_Limit, quantity.InexactFloat64(), price.InexactFloat64())
	})
}

func (e *OkxExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := call(ctx, "okx cancel order "+orderID, func() (struct{}, error) {
		return struct{}{}, e.spot.CancelOrder(orderID, symbol)
	})
	return err
}

func (e *OkxExchange) FetchOrderStatus(ctx context.Context, symbol, orderID string) (model.OrderStatus, error) {
	status, err := call(ctx, "okx fetch order "+orderID, func() (model.OrderStatus, error) {
		info, err := e.spot.GetOrderInfo(orderID, symbol)
		if err != nil {
			return model.OrderUnknown, err
		}
		return toOrderStatus(info.Status), nil
	})
	if err != nil {
		return model.OrderUnknown, err
	}
	return status, nil
}

// 部分成交仍视为 open
func toOrderStatus(s goexmodel.OrderStatus) model.OrderStatus {
	switch s {
	case goexmodel.OrderStatus_Pending, goexmodel.OrderStatus_PartFinished, goexmodel.OrderStatus_Canceling:
		return model.OrderOpen
	case goexmodel.OrderStatus_Finished:
		return model.OrderClosed
	case goexmodel.OrderStatus_Canceled:
		return model.OrderCanceled
	default:
		return model.OrderUnknown
	}
}

func fromGoexSide(s goexmodel.OrderSide) model.OrderSide {
	if strings.Contains(strings.ToLower(string(s)), "sell") {
		return model.Sell
	}
	return model.Buy
}
