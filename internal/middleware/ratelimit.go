package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/ratelimit"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

const rateLimitMessage = "Rate limit exceeded. Please try again later."

// RateLimit enforces policy per client IP. Limiter failures let the request
// through; an unavailable limiter must not take the collector down with it.
func RateLimit(l ratelimit.Limiter, policy ratelimit.Policy, log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}

		res, err := policy.Check(c.Request.Context(), l, ip)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("policy", policy.Name), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			m.RecordRateLimited(policy.Name)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.ResetIn.Seconds()))))
			response.TooManyRequests(c, rateLimitMessage)
			return
		}

		c.Next()
	}
}
