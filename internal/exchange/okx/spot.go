package okx

import (
	"fmt"
	"strings"

	"spotflow/pkg/logger"

	"github.com/bwmarrin/snowflake"
	goexv2 "github.com/nntaoli-project/goex/v2"
	"github.com/nntaoli-project/goex/v2/model"
)

// OkxSpot 现货
type OkxSpot struct {
	Okx
}

func NewOkxSpot(c Config) (*OkxSpot, error) {
	if c.Simulated {
		goexv2.DefaultHttpCli.SetHeaders("x-simulated-trading", "1")
	}
	node, err := snowflake.NewNode(c.NodeID)
	if err != nil {
		return nil, err
	}
	pub := goexv2.OKx.Spot
	return &OkxSpot{
		Okx: Okx{
			prv:    pub.NewPrvApi(c.apiOptions()...),
			pub:    pub,
			exInfo: make(map[string]model.CurrencyPair),
			idGen:  node,
		},
	}, nil
}

// PlaceOrder 下单
// 市价买单默认数量单位为计价币，这里通过 tgtCcy=base_ccy 统一为基础币数量
func (e *OkxSpot) PlaceOrder(symbol, side string, orderType model.OrderType, quantity, price float64) (string, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return "", err
	}

	var orderSide model.OrderSide
	switch strings.ToLower(side) {
	case "buy":
		orderSide = model.Spot_Buy
	case "sell":
		orderSide = model.Spot_Sell
	default:
		return "", fmt.Errorf("invalid order side %q", side)
	}

	opts := []model.OptionParameter{
		{Key: "clOrdId", Value: e.idGen.Generate().String()},
	}
	if orderType == model.OrderType_Market && orderSide == model.Spot_Buy {
		opts = append(opts, model.OptionParameter{Key: "tgtCcy", Value: "base_ccy"})
	}

	created, body, err := e.prv.CreateOrder(pair, quantity, price, orderSide, orderType, opts...)
	if err != nil {
		logger.Errorf("[okx] CreateOrder %s %s err: %v, body: %s", side, symbol, err, string(body))
		return "", err
	}
	if created == nil || created.Id == "" {
		return "", fmt.Errorf("create order %s %s: empty order id", side, symbol)
	}
	return created.Id, nil
}
