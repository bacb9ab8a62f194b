package router

import (
	"spotflow/internal/handler/ping"
	"spotflow/internal/handler/trading"
	"spotflow/internal/handler/webhook"

	"github.com/gin-gonic/gin"
)

type ApiRouter struct {
	tradingHandler *trading.Handler
	webhookHandler *webhook.Handler
}

func NewApiRouter(th *trading.Handler, wh *webhook.Handler) *ApiRouter {
	return &ApiRouter{tradingHandler: th, webhookHandler: wh}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())

	// 签名在 handler 内校验，需要原始 body
	if api.webhookHandler != nil {
		g.POST("/webhook", api.webhookHandler.HandlerWebhook())
	}

	base := g.Group("/api/v1")
	{
		base.GET("/positions", api.tradingHandler.PositionsGet())
		base.GET("/positions/change", api.tradingHandler.PriceChangeGet())
		base.GET("/orders/pending", api.tradingHandler.PendingOrdersGet())
		base.GET("/fills", api.tradingHandler.FillsGet())
	}
}
