package middleware

import (
	"context"
	"net/http"
	"time"

	"monopoly_server/internal/logger"
	"monopoly_server/internal/metrics"
	"monopoly_server/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit blocks clients that exceed the limiter's budget, keyed by IP.
// Limiter errors fail open.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		ok, err := l.Allow(ctx, c.ClientIP())
		cancel()
		if err != nil {
			logger.Warn("rate limiter error", "error", err)
			c.Header("X-RateLimit-Error", "redis-error")
		}

		if !ok {
			metrics.RLBlocked.WithLabelValues(endpoint).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		metrics.RLRequests.WithLabelValues(endpoint).Inc()
		c.Next()
	}
}
