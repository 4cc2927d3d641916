package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

// ClientRateLimiter keeps one token bucket per client key.
type ClientRateLimiter struct {
	clients *xsync.Map[string, *rate.Limiter]
	r       rate.Limit
	b       int
}

// NewClientRateLimiter creates a ClientRateLimiter allowing r requests per
// second with bursts of b.
func NewClientRateLimiter(r rate.Limit, b int) *ClientRateLimiter {
	return &ClientRateLimiter{
		clients: xsync.NewMap[string, *rate.Limiter](),
		r:       r,
		b:       b,
	}
}

// Limiter returns the limiter for key, creating it on first use.
func (l *ClientRateLimiter) Limiter(key string) *rate.Limiter {
	if limiter, ok := l.clients.Load(key); ok {
		return limiter
	}
	limiter, _ := l.clients.LoadOrStore(key, rate.NewLimiter(l.r, l.b))
	return limiter
}

// Clients reports how many clients currently hold a limiter.
func (l *ClientRateLimiter) Clients() int {
	return l.clients.Size()
}

// Allow spends one token for key.
func (l *ClientRateLimiter) Allow(key string) bool {
	return l.Limiter(key).Allow()
}

// RateLimit rejects requests over the limit with 429. Requests carrying an
// API key are bucketed by key, everything else by client IP.
func RateLimit(l *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
