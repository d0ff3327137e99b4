package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/twissandra/pkg/response"
)

const maxTrackedKeys = 100000

// RateLimit applies a token bucket per key, keyed by the authenticated user
// or the client IP.
func RateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	return func(c *gin.Context) {
		key := CurrentUser(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		mu.Lock()
		l, ok := limiters[key]
		if !ok {
			if len(limiters) >= maxTrackedKeys {
				limiters = make(map[string]*rate.Limiter)
			}
			l = rate.NewLimiter(limit, burst)
			limiters[key] = l
		}
		mu.Unlock()

		if !l.Allow() {
			response.TooManyRequests(c, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
