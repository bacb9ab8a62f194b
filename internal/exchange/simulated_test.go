package exchange

import (
	"context"
	"testing"
	"time"

	"spotflow/internal/model"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSim(t *testing.T) *Simulated {
	t.Helper()
	s := NewSimulated(decimal.Zero)
	s.Deposit("USDT", d("1000"))
	s.SetPrice("BTC/USDT", d("100"))
	return s
}

func TestSplitSymbol(t *testing.T) {
	cases := []struct {
		in, base, quote string
	}{
		{"BTC/USDT", "BTC", "USDT"},
		{"eth-usdt", "ETH", "USDT"},
		{"SOLUSDT", "SOL", "USDT"},
		{"BTC-USDT-SWAP", "BTC", "USDT"},
	}
	for _, c := range cases {
		base, quote, err := SplitSymbol(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.base, base)
		assert.Equal(t, c.quote, quote)
	}

	_, _, err := SplitSymbol("XYZ")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestSimulated_MarketOrderSettles(t *testing.T) {
	ctx := context.Background()
	s := newSim(t)

	id, err := s.CreateMarketOrder(ctx, "BTC/USDT", model.Buy, d("2"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	status, err := s.FetchOrderStatus(ctx, "BTC/USDT", id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderClosed, status)

	bal, err := s.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, bal["USDT"].Equal(d("800")))
	assert.True(t, bal["BTC"].Equal(d("2")))

	_, err = s.CreateMarketOrder(ctx, "BTC/USDT", model.Sell, d("3"))
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))
}

func TestSimulated_MarketOrderChargesFee(t *testing.T) {
	s := NewSimulated(d("0.01"))
	s.Deposit("USDT", d("1000"))
	s.SetPrice("BTC/USDT", d("100"))

	_, err := s.CreateMarketOrder(context.Background(), "BTC/USDT", model.Buy, d("1"))
	require.NoError(t, err)
	assert.True(t, s.Balance("USDT").Equal(d("899")))
}

func TestSimulated_LimitOrderFillsOnCross(t *testing.T) {
	ctx := context.Background()
	s := newSim(t)

	id, err := s.CreateLimitOrder(ctx, "BTC/USDT", model.Buy, d("1"), d("90"))
	require.NoError(t, err)

	open, err := s.FetchOpenOrders(ctx, "BTC/USDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].OrderID)
	assert.True(t, open[0].Cost.Equal(d("90")))

	s.SetPrice("BTC/USDT", d("89"))
	status, err := s.FetchOrderStatus(ctx, "BTC/USDT", id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderClosed, status)
	assert.True(t, s.Balance("BTC").Equal(d("1")))
	assert.True(t, s.Balance("USDT").Equal(d("910")))

	open, err = s.FetchOpenOrders(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSimulated_CancelOrder(t *testing.T) {
	ctx := context.Background()
	s := newSim(t)

	id, err := s.CreateLimitOrder(ctx, "BTC/USDT", model.Buy, d("1"), d("50"))
	require.NoError(t, err)
	require.NoError(t, s.CancelOrder(ctx, "BTC/USDT", id))

	status, err := s.FetchOrderStatus(ctx, "BTC/USDT", id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCanceled, status)

	// 取消后价格穿越也不会成交
	s.SetPrice("BTC/USDT", d("40"))
	assert.True(t, s.Balance("BTC").IsZero())

	status, err = s.FetchOrderStatus(ctx, "BTC/USDT", "missing")
	require.NoError(t, err)
	assert.Equal(t, model.OrderUnknown, status)
}

func TestSimulated_FailNext(t *testing.T) {
	ctx := context.Background()
	s := newSim(t)
	boom := errors.New(ecode.GatewayError, "network down")
	s.FailNext(OpFetchTicker, boom)

	_, err := s.FetchTicker(ctx, "BTC/USDT")
	assert.Equal(t, boom, err)

	tk, err := s.FetchTicker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, tk.Last.Equal(d("100")))
}

func TestSimulated_RandomWalk(t *testing.T) {
	s := NewSimulated(decimal.Zero)
	s.SetPrice("BTC/USDT", d("30000"))
	s.EnableRandomWalk()

	for i := 0; i < 10; i++ {
		tk, err := s.FetchTicker(context.Background(), "BTC/USDT")
		require.NoError(t, err)
		assert.True(t, tk.Last.IsPositive())
		assert.True(t, tk.Last.GreaterThan(d("28000")) && tk.Last.LessThan(d("32000")), "price=%s", tk.Last)
	}
}

type slowGateway struct {
	*Simulated
}

func (g slowGateway) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	time.Sleep(200 * time.Millisecond)
	return g.Simulated.FetchTicker(ctx, symbol)
}

func TestWithTimeout(t *testing.T) {
	g := WithTimeout(slowGateway{newSim(t)}, 20*time.Millisecond)

	_, err := g.FetchTicker(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Equal(t, ecode.GatewayError, errors.Code(err))

	// 内部错误统一转为 GatewayError
	sim := newSim(t)
	sim.FailNext(OpCancelOrder, errors.New(ecode.Unknown, "rejected"))
	err = WithTimeout(sim, time.Second).CancelOrder(context.Background(), "BTC/USDT", "x")
	assert.True(t, errors.Is(err, errors.ErrGateway))
}

func TestSimulated_OpenSellFreezesBase(t *testing.T) {
	ctx := context.Background()
	s := newSim(t)
	s.Deposit("BTC", d("3"))

	id, err := s.CreateLimitOrder(ctx, "BTC/USDT", model.Sell, d("3"), d("120"))
	require.NoError(t, err)

	// 挂单冻结了全部 BTC
	_, err = s.CreateMarketOrder(ctx, "BTC/USDT", model.Sell, d("1"))
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))

	require.NoError(t, s.CancelOrder(ctx, "BTC/USDT", id))
	_, err = s.CreateMarketOrder(ctx, "BTC/USDT", model.Sell, d("3"))
	require.NoError(t, err)
	assert.True(t, s.Balance("BTC").IsZero())
	assert.True(t, s.Balance("USDT").Equal(d("1300")))
}
