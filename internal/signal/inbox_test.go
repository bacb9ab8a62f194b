package signal

import (
	"context"
	"testing"
	"time"

	"spotflow/internal/model"
	"spotflow/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInbox(now time.Time) *Inbox {
	in := NewInbox(10 * time.Minute)
	in.now = func() time.Time { return now }
	return in
}

func msg(symbol, action string, at time.Time) model.SignalMessage {
	return model.SignalMessage{Strategy: "test", Symbol: symbol, Action: action, Timestamp: at}
}

func TestInbox_ConsumedOnce(t *testing.T) {
	now := time.Now()
	in := newInbox(now)
	ctx := context.Background()

	require.NoError(t, in.Push(msg("btc/usdt", "buy", now)))

	act, err := in.Next(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, model.ActBuy, act)

	act, err = in.Next(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, model.ActHold, act)
}

func TestInbox_DefaultHold(t *testing.T) {
	in := newInbox(time.Now())
	act, err := in.Next(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, model.ActHold, act)
}

func TestInbox_RejectsExpiredAndInvalid(t *testing.T) {
	now := time.Now()
	in := newInbox(now)

	err := in.Push(msg("BTC/USDT", "buy", now.Add(-time.Hour)))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	err = in.Push(msg("BTC/USDT", "short", now))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	err = in.Push(msg("", "buy", now))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	err = in.Push(model.SignalMessage{Symbol: "BTC/USDT", Action: "buy"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestInbox_ExpiresBeforeConsumed(t *testing.T) {
	now := time.Now()
	in := newInbox(now)
	require.NoError(t, in.Push(msg("BTC/USDT", "sell", now)))

	in.now = func() time.Time { return now.Add(11 * time.Minute) }
	act, err := in.Next(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, model.ActHold, act)
}

func TestInbox_KeepsNewestSignal(t *testing.T) {
	now := time.Now()
	in := newInbox(now)
	require.NoError(t, in.Push(msg("BTC/USDT", "sell", now)))
	require.NoError(t, in.Push(msg("BTC/USDT", "buy", now.Add(-time.Minute))))

	act, _ := in.Next(context.Background(), "BTC/USDT")
	assert.Equal(t, model.ActSell, act)
}

func TestInbox_PriceChange(t *testing.T) {
	in := newInbox(time.Now())

	_, err := in.PriceChange("BTC/USDT")
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))

	in.ObservePrice("BTC/USDT", decimal.NewFromInt(100))
	_, err = in.PriceChange("BTC/USDT")
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))

	in.ObservePrice("BTC/USDT", decimal.NewFromInt(110))
	change, err := in.PriceChange("BTC/USDT")
	require.NoError(t, err)
	assert.True(t, change.Equal(decimal.RequireFromString("0.1")), "change=%s", change)
}

func TestStatic(t *testing.T) {
	s := NewStatic(map[string][]model.Action{"BTC/USDT": {model.ActBuy, model.ActSell}})
	ctx := context.Background()

	for _, want := range []model.Action{model.ActBuy, model.ActSell, model.ActHold} {
		got, err := s.Next(ctx, "BTC/USDT")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestInbox_TradingViewTicker(t *testing.T) {
	in := NewInbox(time.Minute)
	require.NoError(t, in.Push(msg("GALAUSDT", "buy", time.Now())))

	act, err := in.Next(context.Background(), "GALA/USDT")
	require.NoError(t, err)
	assert.Equal(t, model.ActBuy, act)
}

func TestInbox_LastPrice(t *testing.T) {
	in := NewInbox(time.Minute)
	_, ok := in.LastPrice("BTC/USDT")
	assert.False(t, ok)

	in.ObservePrice("BTCUSDT", decimal.NewFromInt(100))
	in.ObservePrice("BTC/USDT", decimal.NewFromInt(120))
	last, ok := in.LastPrice("btc-usdt")
	require.True(t, ok)
	assert.True(t, last.Equal(decimal.NewFromInt(120)))
}
