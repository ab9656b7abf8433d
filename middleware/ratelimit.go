package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByIP charges requests to the client IP.
func ByIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByUser charges requests to the authenticated user, falling back to the
// client IP before Auth has run.
func ByUser(c *gin.Context) string {
	if id := GetUserID(c); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return ByIP(c)
}

const (
	limiterIdle = 10 * time.Minute
	sweepEvery  = 5 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu        sync.Mutex
	r         rate.Limit
	b         int
	buckets   map[string]*bucket
	lastSweep time.Time
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) > sweepEvery {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > limiterIdle {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.r, s.b)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit provides token-bucket rate limiting, one bucket per key.
// r = requests per second, b = burst size. A nil key charges by IP.
func RateLimit(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByIP
	}
	set := &limiterSet{r: r, b: b, buckets: make(map[string]*bucket), lastSweep: time.Now()}
	return func(c *gin.Context) {
		if !set.allow(key(c), time.Now()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
