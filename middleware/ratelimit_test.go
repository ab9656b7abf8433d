package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(r rate.Limit, b int, key KeyFunc) *gin.Engine {
	eng := gin.New()
	eng.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(UserIDKey, int64(len(uid)))
		}
		c.Next()
	})
	eng.Use(RateLimit(r, b, key))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func hit(r *gin.Engine, ip, user string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_Burst(t *testing.T) {
	r := newRateLimitRouter(0.001, 3, nil) // near-zero refill so we exhaust quickly
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.1.1", ""), "request %d should be allowed", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.1.1", ""))
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newRateLimitRouter(0.001, 1, ByIP)
	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.1", ""))
	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.2", ""))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.1.1.1", ""))
}

func TestRateLimit_ByUserFollowsTheAccount(t *testing.T) {
	r := newRateLimitRouter(0.001, 1, ByUser)
	assert.Equal(t, http.StatusOK, hit(r, "10.2.0.1", "a"))
	// Same user from another address shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.2.0.2", "a"))
	// Another user behind the first address has its own.
	assert.Equal(t, http.StatusOK, hit(r, "10.2.0.1", "bb"))
	// Anonymous requests fall back to the IP.
	assert.Equal(t, http.StatusOK, hit(r, "10.2.0.1", ""))
}

func TestLimiterSet_SweepsIdleBuckets(t *testing.T) {
	start := time.Now()
	s := &limiterSet{r: 1, b: 1, buckets: make(map[string]*bucket), lastSweep: start}
	assert.True(t, s.allow("old", start))
	assert.True(t, s.allow("fresh", start.Add(limiterIdle)))
	assert.True(t, s.allow("fresh", start.Add(limiterIdle+sweepEvery+time.Second)))
	assert.NotContains(t, s.buckets, "old")
	assert.Contains(t, s.buckets, "fresh")
}
