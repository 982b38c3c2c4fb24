package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/trust-ring-detector/pkg/common"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"go.uber.org/zap"
)

// Recovery turns handler panics into a 500 envelope
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithContext(c.Request.Context()).Error("Panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Stack("stack"),
				)

				common.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}
