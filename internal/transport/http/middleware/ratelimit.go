package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/metrics"
	"github.com/ErlanBelekov/referral-tracker/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

const errTooManyRequests = "Too many requests from this IP, please try again later."

// RateLimit applies a per-client-IP fixed window. Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := limiter.Hit(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining()))
		c.Header("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))

		if !res.Allowed() {
			retryAfter := int(time.Until(res.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			metrics.RateLimitedTotal.WithLabelValues(limiter.Backend()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": errTooManyRequests, "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}
