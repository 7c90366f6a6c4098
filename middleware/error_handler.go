package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-clients/logger"
	"crm-clients/utils"
)

// ErrorHandler reports errors attached with c.Error after the handler chain ran.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		log := logger.From(c.Request.Context())
		for _, ginErr := range c.Errors {
			log.Error("request failed",
				logger.Path(c.Request.URL.Path),
				logger.Status(c.Writer.Status()),
				zap.Error(ginErr.Err),
			)
			utils.CaptureError(ginErr.Err, map[string]interface{}{
				"endpoint": c.Request.URL.Path,
				"method":   c.Request.Method,
				"status":   c.Writer.Status(),
			})
		}
	}
}
