package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/utils"
)

// RequireInstructor rejects callers whose email is not on the instructor allow-list.
func RequireInstructor(instructors *auth.InstructorAllowList, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !instructors.Allows(identity) {
			logger.Warn().
				Str("correlation_id", GetCorrelationID(c)).
				Str("email", identity.Email).
				Str("route", c.Path()).
				Msg("instructor route rejected")
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
