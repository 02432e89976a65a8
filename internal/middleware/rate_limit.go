package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/csharp-course-api/internal/observability"
	"github.com/noah-isme/csharp-course-api/internal/ratelimit"
	"github.com/noah-isme/csharp-course-api/internal/utils"
)

// RateLimit rejects requests once the caller's token bucket is empty. Buckets are keyed by
// the authenticated subject, falling back to the client address.
func RateLimit(identifier string, limiter *ratelimit.TokenBucket) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}

		key := c.IP()
		if identity, ok := IdentityFromContext(c); ok {
			key = identity.SubjectID
		}

		if !limiter.Allow(identifier + ":" + key) {
			observability.RateLimited().WithLabelValues(identifier).Inc()
			return utils.SendError(c, fiber.StatusTooManyRequests, "rate limit exceeded, try again shortly")
		}
		return c.Next()
	}
}
