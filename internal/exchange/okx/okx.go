package okx

import (
	"fmt"
	"strings"
	"sync"

	"spotflow/pkg/logger"

	"github.com/bwmarrin/snowflake"
	goexv2 "github.com/nntaoli-project/goex/v2"
	"github.com/nntaoli-project/goex/v2/model"
	"github.com/nntaoli-project/goex/v2/options"
)

// Okx 现货接口的基础结构，封装 goex 的公有和私有 api
type Okx struct {
	prv goexv2.IPrvRest
	pub goexv2.IPubRest

	mu     sync.Mutex
	exInfo map[string]model.CurrencyPair

	// clOrdId 生成器
	idGen *snowflake.Node
}

// Config 访问 OKX 所需的凭证
type Config struct {
	ApiKey     string
	SecretKey  string
	Passphrase string
	// okxv5 api 如果要使用模拟交易，需要切到到模拟交易下创建apikey
	Simulated bool
	NodeID    int64
}

func (c Config) apiOptions() []options.ApiOption {
	return []options.ApiOption{
		options.WithApiKey(c.ApiKey),
		options.WithApiSecretKey(c.SecretKey),
		options.WithPassphrase(c.Passphrase),
	}
}

// 币对格式转换: "BTC/USDT"、"BTC-USDT-SWAP" -> goex 需要的 CurrencyPair
func (e *Okx) toCurrencyPair(symbol string) (model.CurrencyPair, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) == 1 {
		parts = strings.Split(symbol, "-")
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return model.CurrencyPair{}, fmt.Errorf("invalid symbol format %q, expected like BTC/USDT", symbol)
	}

	key := strings.ToUpper(parts[0] + "-" + parts[1])
	e.mu.Lock()
	pair, ok := e.exInfo[key]
	e.mu.Unlock()
	if ok {
		return pair, nil
	}

	// 创建订单时需要 GetExchangeInfo 加载过的 pair
	if err := e.loadExchangeInfo(); err != nil {
		return model.CurrencyPair{}, err
	}
	pair, err := e.pub.NewCurrencyPair(strings.ToUpper(parts[0]), strings.ToUpper(parts[1]))
	if err != nil {
		return model.CurrencyPair{}, err
	}
	e.mu.Lock()
	e.exInfo[key] = pair
	e.mu.Unlock()
	return pair, nil
}

// 初始化时加载所有可交易币对
func (e *Okx) loadExchangeInfo() error {
	e.mu.Lock()
	loaded := len(e.exInfo) > 0
	e.mu.Unlock()
	if loaded {
		return nil
	}
	info, body, err := e.pub.GetExchangeInfo()
	if err != nil {
		logger.Errorf("[okx] GetExchangeInfo err: %v, body: %s", err, string(body))
		return err
	}
	e.mu.Lock()
	for k, v := range info {
		e.exInfo[strings.ToUpper(k)] = v
	}
	e.mu.Unlock()
	return nil
}

// GetLastPrice 获取最新价格
func (e *Okx) GetLastPrice(symbol string) (float64, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return 0, err
	}
	ticker, body, err := e.pub.GetTicker(pair)
	if err != nil {
		logger.Warnf("[okx] GetTicker %s err: %v, body: %s", symbol, err, string(body))
		return 0, err
	}
	if ticker == nil {
		return 0, fmt.Errorf("failed to get ticker %s", symbol)
	}
	return ticker.Last, nil
}

// GetBalances 所有币种的可用余额
func (e *Okx) GetBalances() (map[string]float64, error) {
	accounts, body, err := e.prv.GetAccount("")
	if err != nil {
		logger.Warnf("[okx] GetAccount err: %v, body: %s", err, string(body))
		return nil, err
	}
	out := make(map[string]float64, len(accounts))
	for coin, acc := range accounts {
		out[strings.ToUpper(coin)] = acc.AvailableBalance
	}
	return out, nil
}

// CancelOrder 取消订单
func (e *Okx) CancelOrder(orderID, symbol string) error {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return err
	}
	body, err := e.prv.CancelOrder(pair, orderID)
	if err != nil {
		logger.Warnf("[okx] CancelOrder %s err: %v, body: %s", orderID, err, string(body))
	}
	return err
}

// GetOrderInfo 查询订单
func (e *Okx) GetOrderInfo(orderID, symbol string) (*model.Order, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	info, body, err := e.prv.GetOrderInfo(pair, orderID)
	if err != nil {
		logger.Warnf("[okx] GetOrderInfo %s err: %v, body: %s", orderID, err, string(body))
		return nil, err
	}
	return info, nil
}

// GetPendingOrders 未完成订单
func (e *Okx) GetPendingOrders(symbol string) ([]model.Order, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	orders, body, err := e.prv.GetPendingOrders(pair)
	if err != nil {
		logger.Warnf("[okx] GetPendingOrders %s err: %v, body: %s", symbol, err, string(body))
		return nil, err
	}
	return orders, nil
}
