package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/stretchr/testify/assert"
)

// traceOf runs one request carrying header (if non-empty) and returns the
// trace id seen by the handler on the gin context and the request context.
func traceOf(t *testing.T, header string) (ginID, ctxID, respHeader string) {
	t.Helper()
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) {
		ginID = GetTraceID(c)
		ctxID = audit.TraceIDFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	if header != "" {
		req.Header.Set(TraceIDHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return ginID, ctxID, w.Header().Get(TraceIDHeader)
}

func TestTraceID_KeepsWellFormedHeader(t *testing.T) {
	ginID, ctxID, resp := traceOf(t, "req-42_a.b")
	assert.Equal(t, "req-42_a.b", ginID)
	assert.Equal(t, ginID, ctxID)
	assert.Equal(t, ginID, resp)
}

func TestTraceID_ReplacesBadHeader(t *testing.T) {
	for _, bad := range []string{"", "has space", "semi;colon", "line\nbreak", strings.Repeat("a", maxTraceIDLen+1)} {
		ginID, ctxID, resp := traceOf(t, bad)
		_, err := uuid.Parse(ginID)
		assert.NoError(t, err, "header %q", bad)
		assert.Equal(t, ginID, ctxID)
		assert.Equal(t, ginID, resp)
	}
}

func TestTraceID_UniquePerRequest(t *testing.T) {
	a, _, _ := traceOf(t, "")
	b, _, _ := traceOf(t, "")
	assert.NotEqual(t, a, b)
}

func TestGetTraceID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}
