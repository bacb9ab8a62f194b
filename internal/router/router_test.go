package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"spotflow/internal/consts"
	"spotflow/internal/exchange"
	"spotflow/internal/handler/trading"
	whhandler "spotflow/internal/handler/webhook"
	"spotflow/internal/middleware"
	"spotflow/internal/model"
	"spotflow/internal/order"
	"spotflow/internal/position"
	"spotflow/internal/signal"
	"spotflow/internal/webhook"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "s3cret"

type env struct {
	engine *gin.Engine
	inbox  *signal.Inbox
	coord  *order.Coordinator
	sim    *exchange.Simulated
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sim := exchange.NewSimulated(decimal.Zero)
	sim.Deposit("USDT", decimal.NewFromInt(1000))
	sim.SetPrice("BTC/USDT", decimal.NewFromInt(100))

	ledger := position.NewLedger()
	journal := order.NewFileJournal(filepath.Join(t.TempDir(), "fills.jsonl"))
	t.Cleanup(func() { _ = journal.Close() })
	coord := order.NewCoordinator(sim, ledger, decimal.Zero, order.WithJournal(journal))
	inbox := signal.NewInbox(10 * time.Minute)

	g := gin.New()
	g.Use(middleware.RequestId())
	NewApiRouter(
		trading.NewHandler(ledger, coord, inbox, journal),
		whhandler.NewHandler(webhook.NewWebhookHandler(inbox, secret)),
	).Load(g)
	return &env{engine: g, inbox: inbox, coord: coord, sim: sim}
}

func (e *env) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, response.ApiResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var res response.ApiResponse
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func webhookReq(body []byte, sig string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(consts.Signature, sig)
	}
	return req
}

func signalBody(t *testing.T, action string, at time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(model.SignalMessage{Strategy: "tv", Symbol: "BTC/USDT", Action: action, Price: 100, Timestamp: at})
	require.NoError(t, err)
	return body
}

func TestPing(t *testing.T) {
	e := setup(t)
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Success")
}

func TestWebhook_Accepted(t *testing.T) {
	e := setup(t)
	body := signalBody(t, "buy", time.Now())

	w, res := e.do(t, webhookReq(body, webhook.Sign(body, []byte(secret))))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ecode.Success, res.Code)
	assert.NotEmpty(t, res.RequestId)

	act, err := e.inbox.Next(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, model.ActBuy, act)
}

func TestWebhook_BadSignature(t *testing.T) {
	e := setup(t)
	body := signalBody(t, "buy", time.Now())

	w, res := e.do(t, webhookReq(body, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ecode.RequireAuthErr, res.Code)

	w, _ = e.do(t, webhookReq(body, webhook.Sign(body, []byte("other"))))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	act, _ := e.inbox.Next(context.Background(), "BTC/USDT")
	assert.Equal(t, model.ActHold, act)
}

func TestWebhook_ExpiredSignal(t *testing.T) {
	e := setup(t)
	body := signalBody(t, "sell", time.Now().Add(-time.Hour))

	w, res := e.do(t, webhookReq(body, webhook.Sign(body, []byte(secret))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ecode.InvalidInput, res.Code)
}

func TestWebhook_InvalidJSON(t *testing.T) {
	e := setup(t)
	body := []byte("{not json")

	w, res := e.do(t, webhookReq(body, webhook.Sign(body, []byte(secret))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ecode.InvalidInput, res.Code)
}

func TestPositionsAndPending(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.coord.SubmitMarket(ctx, "BTC/USDT", model.Buy, decimal.NewFromInt(2))
	require.NoError(t, err)
	_, err = e.coord.SubmitLimit(ctx, "BTC/USDT", model.Buy, decimal.NewFromInt(1), decimal.NewFromInt(80))
	require.NoError(t, err)

	w, res := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ecode.Success, res.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"BTC/USDT"`)
	assert.Contains(t, w.Body.String(), `"balance":"2"`)

	w, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/orders/pending", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price":"80"`)
}

func TestPriceChange(t *testing.T) {
	e := setup(t)

	w, res := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/positions/change?symbol=BTC/USDT", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ecode.InsufficientData, res.Code)

	e.inbox.ObservePrice("BTC/USDT", decimal.NewFromInt(100))
	e.inbox.ObservePrice("BTC/USDT", decimal.NewFromInt(105))
	w, res = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/positions/change?symbol=BTC/USDT", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ecode.Success, res.Code)
	assert.Contains(t, w.Body.String(), `"change":"0.05"`)

	w, res = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/positions/change", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ecode.BadRequest, res.Code)
}

func TestPositions_Unrealized(t *testing.T) {
	e := setup(t)
	_, err := e.coord.SubmitMarket(context.Background(), "BTC/USDT", model.Buy, decimal.NewFromInt(2))
	require.NoError(t, err)

	// 还没有价格采样
	w, _ := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))
	assert.NotContains(t, w.Body.String(), `"unrealized"`)

	e.inbox.ObservePrice("BTC/USDT", decimal.NewFromInt(110))
	w, res := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil))
	assert.Equal(t, ecode.Success, res.Code)
	assert.Contains(t, w.Body.String(), `"last_price":"110"`)
	assert.Contains(t, w.Body.String(), `"unrealized":"20"`)
}

func TestFills(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.coord.SubmitMarket(ctx, "BTC/USDT", model.Buy, decimal.NewFromInt(2))
	require.NoError(t, err)
	_, err = e.coord.SubmitMarket(ctx, "BTC/USDT", model.Sell, decimal.NewFromInt(1))
	require.NoError(t, err)

	// TradingView 写法的币对同样可以查询
	w, res := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fills?symbol=BTCUSDT&limit=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ecode.Success, res.Code)
	assert.Contains(t, w.Body.String(), `"side":"sell"`)
	assert.NotContains(t, w.Body.String(), `"side":"buy"`)

	w, res = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fills?symbol=ETH/USDT", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fills":[]`)

	w, res = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fills", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ecode.BadRequest, res.Code)
}
