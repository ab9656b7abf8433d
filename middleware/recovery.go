package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery returns a Gin middleware that catches panics, logs them with a
// stack trace, and answers 500 with the trace ID so the failure can be
// found in the logs.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				traceID := GetTraceID(c)
				log.Error("panic recovered",
					zap.Any("error", r),
					zap.String("trace_id", traceID),
					zap.String("route", c.FullPath()),
					zap.Int64("user_id", GetUserID(c)),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":    "internal server error",
					"trace_id": traceID,
				})
			}
		}()
		c.Next()
	}
}
