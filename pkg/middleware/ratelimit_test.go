package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestClientRateLimiterPerKey(t *testing.T) {
	l := NewClientRateLimiter(rate.Limit(0), 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are independent")
	assert.Equal(t, 2, l.Clients())
}

func TestClientRateLimiterConcurrentCreate(t *testing.T) {
	l := NewClientRateLimiter(rate.Limit(0), 1)
	limiters := make([]*rate.Limiter, 16)

	var wg sync.WaitGroup
	for i := range limiters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			limiters[i] = l.Limiter("shared")
		}(i)
	}
	wg.Wait()

	for _, got := range limiters {
		assert.Same(t, limiters[0], got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(NewClientRateLimiter(rate.Limit(0), 1)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("k1"))
	assert.Equal(t, http.StatusTooManyRequests, do("k1"))
	assert.Equal(t, http.StatusOK, do("k2"))
	assert.Equal(t, http.StatusOK, do(""))
	assert.Equal(t, http.StatusTooManyRequests, do(""))
}
