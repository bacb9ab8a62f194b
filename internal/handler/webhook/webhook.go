package webhook

import (
	"spotflow/internal/webhook"
	"spotflow/pkg/errors"
	"spotflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	whHandler *webhook.WebhookHandler
}

func NewHandler(wh *webhook.WebhookHandler) *Handler {
	return &Handler{whHandler: wh}
}

func (h *Handler) HandlerWebhook() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		sig, err := h.whHandler.Handle(ctx.Request)
		if errors.Is(err, webhook.ErrSignature) {
			response.RequireAuthErr(ctx, err)
			return
		}
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, gin.H{"symbol": sig.Symbol, "action": sig.Action})
	}
}
