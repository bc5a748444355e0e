package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/models"
	"golang.org/x/time/rate"
)

const (
	maxLimiters = 4096
	limiterIdle = time.Hour
)

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate.
//
// Limiters live in an expiring LRU, so identities idle for an hour are
// forgotten and memory stays bounded without a sweeper goroutine.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := expirable.NewLRU[string, *rate.Limiter](maxLimiters, nil, limiterIdle)

	getLimiter := func(identity string) *rate.Limiter {
		l, ok := limiters.Get(identity)
		if !ok {
			l = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		}
		// Re-adding refreshes the idle deadline.
		limiters.Add(identity, l)
		return l
	}

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.ClientIP()
		if key, ok := c.Get(IdentityKey); ok {
			identity = "key:" + key.(string)
		}

		l := getLimiter(identity)
		r := l.Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
