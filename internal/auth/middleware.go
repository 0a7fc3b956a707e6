package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"racecal-backend/internal/apperr"
)

const identityKey = "identity"

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and stores the caller's Identity on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.Unauthorized("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperr.Unauthorized("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return apperr.Unauthorized("Invalid or expired token")
		}

		c.Locals(identityKey, &Identity{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})

		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated caller has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := GetIdentity(c)
		if id == nil {
			return apperr.Unauthorized("Missing auth token")
		}
		if !id.IsAdmin() {
			return apperr.Forbidden("Admin access required")
		}
		return c.Next()
	}
}

// GetIdentity extracts the Identity from a Fiber context.
func GetIdentity(c *fiber.Ctx) *Identity {
	id, _ := c.Locals(identityKey).(*Identity)
	return id
}
