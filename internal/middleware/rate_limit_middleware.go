package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/davrilhan/couponly/internal/helpers"
)

type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	lim, ok := cl.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(cl.limit, cl.burst)
		cl.limiters[ip] = lim
	}
	return lim
}

// RateLimitMiddleware applies a per-client token bucket. Counters are
// in-process, so the limit is per server instance; a shared store would
// be needed to enforce it across replicas.
func RateLimitMiddleware(perMinute, burst int) gin.HandlerFunc {
	cl := &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}

	return func(c *gin.Context) {
		if !cl.get(clientIP(c)).Allow() {
			c.Header("Retry-After", "60")
			helpers.AbortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded.")
			return
		}
		c.Next()
	}
}

// clientIP prefers proxy-set headers over the socket address.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return c.ClientIP()
}
