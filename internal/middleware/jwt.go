package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/csharp-course-api/internal/auth"
	"github.com/noah-isme/csharp-course-api/internal/utils"
)

const identityLocal = "identity"

// Authenticate verifies the bearer token and stores the caller identity on the request.
func Authenticate(verifier auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		identity, err := verifier.Verify(authorization[len(bearer):])
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		SetIdentity(c, identity)
		return c.Next()
	}
}

// SetIdentity binds a verified identity to the request.
func SetIdentity(c *fiber.Ctx, identity auth.Identity) {
	c.Locals(identityLocal, identity)
	c.Locals("user_id", identity.SubjectID)
}

// IdentityFromContext returns the identity bound by Authenticate.
func IdentityFromContext(c *fiber.Ctx) (auth.Identity, bool) {
	if c == nil {
		return auth.Identity{}, false
	}
	identity, ok := c.Locals(identityLocal).(auth.Identity)
	if !ok || identity.SubjectID == "" {
		return auth.Identity{}, false
	}
	return identity, true
}
