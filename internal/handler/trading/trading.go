package trading

import (
	"spotflow/internal/model"
	"spotflow/internal/order"
	"spotflow/internal/position"
	"spotflow/internal/signal"
	"spotflow/pkg/errors"
	"spotflow/pkg/errors/ecode"
	"spotflow/pkg/response"
	"spotflow/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 只读的持仓、挂单和成交查询
type Handler struct {
	ledger *position.Ledger
	coord  *order.Coordinator
	inbox  *signal.Inbox
	fills  order.FillHistory
}

func NewHandler(ledger *position.Ledger, coord *order.Coordinator, inbox *signal.Inbox, fills order.FillHistory) *Handler {
	return &Handler{ledger: ledger, coord: coord, inbox: inbox, fills: fills}
}

// 持仓附带最近采样价格下的浮动盈亏，没有采样时省略
type positionItem struct {
	position.Position
	LastPrice  *decimal.Decimal `json:"last_price,omitempty"`
	Unrealized *decimal.Decimal `json:"unrealized,omitempty"`
}

type positionsRes struct {
	Positions []positionItem `json:"positions"`
}

// PositionsGet 所有币对的持仓
func (h *Handler) PositionsGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		snapshot := h.ledger.Snapshot()
		items := make([]positionItem, 0, len(snapshot))
		for _, p := range snapshot {
			item := positionItem{Position: p}
			if last, ok := h.inbox.LastPrice(p.Symbol); ok {
				unrealized := p.Unrealized(last)
				item.LastPrice = &last
				item.Unrealized = &unrealized
			}
			items = append(items, item)
		}
		response.JSON(ctx, nil, positionsRes{Positions: items})
	}
}

type fillsReq struct {
	Symbol string `form:"symbol" binding:"required"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

type fillsRes struct {
	Fills []model.FillRecord `json:"fills"`
}

// FillsGet 某个币对最近的成交记录
func (h *Handler) FillsGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req fillsReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.BadRequest, "invalid query"), nil)
			return
		}
		if h.fills == nil {
			response.JSON(ctx, errors.New(ecode.BadRequest, "fill history not available"), nil)
			return
		}
		if req.Limit == 0 {
			req.Limit = 50
		}
		fills, err := h.fills.FillsBySymbol(ctx.Request.Context(), utils.FormatSymbol(req.Symbol), req.Limit)
		if err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.Unknown, "query fills"), nil)
			return
		}
		if fills == nil {
			fills = []model.FillRecord{}
		}
		response.JSON(ctx, nil, fillsRes{Fills: fills})
	}
}

type pendingRes struct {
	Orders []order.PendingOrder `json:"orders"`
}

// PendingOrdersGet 等待成交的限价单
func (h *Handler) PendingOrdersGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, pendingRes{Orders: h.coord.Pending()})
	}
}

type priceChangeReq struct {
	Symbol string `form:"symbol" binding:"required"`
}

type priceChangeRes struct {
	Symbol string          `json:"symbol"`
	Change decimal.Decimal `json:"change"`
}

// PriceChangeGet 最近两次采样的涨跌幅，采样不足时返回 InsufficientData
func (h *Handler) PriceChangeGet() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req priceChangeReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, errors.Wrap(err, ecode.BadRequest, "symbol required"), nil)
			return
		}
		change, err := h.inbox.PriceChange(req.Symbol)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, priceChangeRes{Symbol: req.Symbol, Change: change})
	}
}
