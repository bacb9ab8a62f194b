package position

import (
	"sync"
	"testing"

	"spotflow/internal/model"
	"spotflow/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLedger_GetOrCreate(t *testing.T) {
	l := NewLedger()

	p := l.GetOrCreate("BTC/USDT")
	assert.Equal(t, "BTC/USDT", p.Symbol)
	assert.True(t, p.Balance.IsZero())
	assert.True(t, p.AverageCost.IsZero())
	assert.True(t, p.RealizedProfit.IsZero())

	// 重复获取不会重置
	_, err := l.ApplyFill("BTC/USDT", model.Buy, d("1"), d("100"), decimal.Zero)
	require.NoError(t, err)
	p = l.GetOrCreate("BTC/USDT")
	assert.True(t, p.Balance.Equal(d("1")))
	assert.Len(t, l.Snapshot(), 1)
}

func TestLedger_BuyWeightedAverageWithFee(t *testing.T) {
	l := NewLedger()
	fee := d("0.01")

	p, err := l.ApplyFill("ETH/USDT", model.Buy, d("1"), d("100"), fee)
	require.NoError(t, err)
	assert.True(t, p.AverageCost.Equal(d("101")), "avg=%s", p.AverageCost)

	p, err = l.ApplyFill("ETH/USDT", model.Buy, d("1"), d("120"), fee)
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(d("2")))
	assert.True(t, p.AverageCost.Equal(d("111.1")), "avg=%s", p.AverageCost)
}

func TestLedger_SellRealizesProfitAndKeepsAverage(t *testing.T) {
	l := NewLedger()
	fee := d("0.025")

	_, err := l.ApplyFill("DOGE/USDT", model.Buy, d("10"), d("2"), fee)
	require.NoError(t, err)
	before := l.GetOrCreate("DOGE/USDT")

	price, qty := d("3"), d("4")
	p, err := l.ApplyFill("DOGE/USDT", model.Sell, qty, price, fee)
	require.NoError(t, err)

	want := price.Mul(decimal.NewFromInt(1).Sub(fee)).Sub(before.AverageCost).Mul(qty)
	assert.True(t, p.RealizedProfit.Equal(want), "realized=%s want=%s", p.RealizedProfit, want)
	assert.True(t, p.AverageCost.Equal(before.AverageCost))
	assert.True(t, p.Balance.Equal(d("6")))

	// 亏损卖出累加为负
	p, err = l.ApplyFill("DOGE/USDT", model.Sell, d("6"), d("1"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, p.Balance.IsZero())
	assert.True(t, p.RealizedProfit.LessThan(want))
}

func TestLedger_SellExceedingBalance(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("SOL/USDT", model.Buy, d("2"), d("50"), decimal.Zero)
	require.NoError(t, err)

	_, err = l.ApplyFill("SOL/USDT", model.Sell, d("2.5"), d("60"), decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientBalance))

	// 仓位不变
	p := l.GetOrCreate("SOL/USDT")
	assert.True(t, p.Balance.Equal(d("2")))
	assert.True(t, p.RealizedProfit.IsZero())
}

func TestLedger_InvalidInput(t *testing.T) {
	l := NewLedger()
	cases := []struct {
		name    string
		symbol  string
		side    model.OrderSide
		qty     string
		price   string
		feeRate string
	}{
		{"empty symbol", "", model.Buy, "1", "1", "0"},
		{"zero quantity", "BTC/USDT", model.Buy, "0", "1", "0"},
		{"negative price", "BTC/USDT", model.Buy, "1", "-1", "0"},
		{"fee rate one", "BTC/USDT", model.Buy, "1", "1", "1"},
		{"negative fee rate", "BTC/USDT", model.Sell, "1", "1", "-0.1"},
		{"bad side", "BTC/USDT", model.OrderSide("short"), "1", "1", "0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := l.ApplyFill(c.symbol, c.side, d(c.qty), d(c.price), d(c.feeRate))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
	assert.True(t, l.GetOrCreate("BTC/USDT").Balance.IsZero())
}

func TestLedger_ConcurrentFillsSameSymbol(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.ApplyFill("BTC/USDT", model.Buy, d("0.1"), d("100"), decimal.Zero)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p := l.GetOrCreate("BTC/USDT")
	assert.True(t, p.Balance.Equal(d("5")), "balance=%s", p.Balance)
	assert.True(t, p.AverageCost.Equal(d("100")), "avg=%s", p.AverageCost)
}

func TestPosition_Unrealized(t *testing.T) {
	p := Position{Balance: d("10"), AverageCost: d("10")}
	assert.True(t, p.Unrealized(d("9")).Equal(d("-10")))
	assert.True(t, p.CapitalAtRisk().Equal(d("100")))
	assert.False(t, p.IsFlat())
}
