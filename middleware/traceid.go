package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/audit"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"

	maxTraceIDLen = 64
)

// TraceID tags every request with a trace id, reusing the caller's X-Trace-ID
// when it is well formed. The id is echoed in the response header and carried
// on the request context for audit entries.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if !validTraceID(traceID) {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(audit.WithTraceID(c.Request.Context(), traceID))
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// validTraceID accepts short ids made of letters, digits, '-', '_' and '.'.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch ch := id[i]; {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.':
		default:
			return false
		}
	}
	return true
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
