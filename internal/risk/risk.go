package risk

import (
	"spotflow/conf"
	"spotflow/internal/model"
	"spotflow/internal/position"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"

	"github.com/shopspring/decimal"
)

// Parameters 风控参数，启动后只读
type Parameters struct {
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	RiskFactorPct decimal.Decimal
	FeeRate       decimal.Decimal
	MinNotional   decimal.Decimal
}

func ParametersFromConfig(c conf.TradingConfig) Parameters {
	return Parameters{
		StopLossPct:   decimal.NewFromFloat(c.StopLossPct),
		TakeProfitPct: decimal.NewFromFloat(c.TakeProfitPct),
		RiskFactorPct: decimal.NewFromFloat(c.RiskFactorPct),
		FeeRate:       decimal.NewFromFloat(c.FeeRate),
		MinNotional:   decimal.NewFromFloat(c.MinNotional),
	}
}

// ErrInvalidPrice 价格必须大于0
var ErrInvalidPrice = errors.New(ecode.InvalidInput, "invalid price")

// MaxRisk 单笔交易允许动用的资金 = max(可用 - 挂单占用, 0) * 风险系数
func MaxRisk(available, openOrderNotional, riskFactorPct decimal.Decimal) decimal.Decimal {
	free := available.Sub(openOrderNotional)
	if free.IsNegative() {
		free = decimal.Zero
	}
	out := free.Mul(riskFactorPct)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// PositionSize 下单数量，名义价值不足最小下单额时抬到最小下单额
func PositionSize(maxRisk, price, minNotional decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, ecode.InvalidInput, "position size at price %s", price)
	}
	size := maxRisk.Div(price)
	if size.Mul(price).LessThan(minNotional) {
		size = minNotional.Div(price)
		// 除法截断可能让名义价值略低于最小值
		if size.Mul(price).LessThan(minNotional) {
			size = minNotional.DivRound(price, int32(decimal.DivisionPrecision+2)).Add(decimal.New(1, -int32(decimal.DivisionPrecision)))
		}
	}
	return size, nil
}

// StopLossTakeProfit 止损止盈检查，只会返回 Sell 或 Hold
// 阈值以持仓成本 average_cost*balance 为基数，严格大于才触发
func StopLossTakeProfit(pos position.Position, currentPrice, stopLossPct, takeProfitPct decimal.Decimal) model.Action {
	unrealized := pos.Unrealized(currentPrice)
	capital := pos.CapitalAtRisk()

	if unrealized.IsNegative() && unrealized.Abs().GreaterThan(stopLossPct.Mul(capital)) {
		return model.ActSell
	}
	if unrealized.IsPositive() && unrealized.GreaterThan(takeProfitPct.Mul(capital)) {
		return model.ActSell
	}
	return model.ActHold
}

// Sizer 绑定风控参数
type Sizer struct {
	Params Parameters
}

func NewSizer(p Parameters) *Sizer {
	return &Sizer{Params: p}
}

func (s *Sizer) MaxRisk(available, openOrderNotional decimal.Decimal) decimal.Decimal {
	return MaxRisk(available, openOrderNotional, s.Params.RiskFactorPct)
}

func (s *Sizer) PositionSize(maxRisk, price decimal.Decimal) (decimal.Decimal, error) {
	return PositionSize(maxRisk, price, s.Params.MinNotional)
}

// Size 直接由可用资金算出下单数量
func (s *Sizer) Size(available, openOrderNotional, price decimal.Decimal) (decimal.Decimal, error) {
	return s.PositionSize(s.MaxRisk(available, openOrderNotional), price)
}

func (s *Sizer) Check(pos position.Position, currentPrice decimal.Decimal) model.Action {
	return StopLossTakeProfit(pos, currentPrice, s.Params.StopLossPct, s.Params.TakeProfitPct)
}

// Reason 触发原因，仅用于日志
func (s *Sizer) Reason(pos position.Position, currentPrice decimal.Decimal) string {
	if s.Check(pos, currentPrice) != model.ActSell {
		return ""
	}
	if pos.Unrealized(currentPrice).IsNegative() {
		return "stop_loss"
	}
	return "take_profit"
}

// TakeProfitPrice 买入后止盈挂单价格 price*(1+tp)
func (s *Sizer) TakeProfitPrice(entry decimal.Decimal) decimal.Decimal {
	return entry.Add(entry.Mul(s.Params.TakeProfitPct))
}
