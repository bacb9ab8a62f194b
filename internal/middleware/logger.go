package middleware

import (
	"time"

	"spotflow/internal/consts"
	"spotflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

func Logger(c *gin.Context) {
	t := time.Now()
	reqPath := c.Request.URL.Path
	reqId := c.GetString(consts.RequestId)
	method := c.Request.Method
	ip := c.ClientIP()

	c.Next()

	logger.With(
		consts.RequestId, reqId,
		"host", ip,
		"path", reqPath,
		"method", method,
		"status", c.Writer.Status(),
		"cost", time.Since(t),
	).Infof("[Request]")
}
