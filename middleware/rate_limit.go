package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window request counter per client key.
type RateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	lastReset time.Time
	rate      int           // requests per window
	window    time.Duration // time window
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:    make(map[string]int),
		lastReset: time.Now(),
		rate:      rate,
		window:    window,
		now:       time.Now,
	}
}

// Allow counts one request for key and reports whether it is within the
// limit.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastReset) > l.window {
		l.counts = make(map[string]int)
		l.lastReset = now
	}

	if l.counts[key] >= l.rate {
		return false
	}
	l.counts[key]++
	return true
}

// RateLimit limits requests per authenticated actor, falling back to the
// client IP for anonymous requests.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if actor := GetActor(c); actor.ID != "" {
			key = "actor:" + actor.ID
		}

		if !limiter.Allow(key) {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "key", key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
