package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the middleware for downstream handlers.
const (
	LocalUserID = "auth_user_id"
	LocalEmail  = "auth_email"
	LocalRole   = "auth_role"
)

// RequireAuth rejects requests without a valid bearer token and stashes the
// caller's identity in the request locals.
func RequireAuth(jwt *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "authentication required",
			})
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid or expired token",
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalEmail, claims.Email)
		c.Locals(LocalRole, claims.Role)
		return c.Next()
	}
}

// RequireAdmin gates a route on the admin role. Must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals(LocalRole).(string); role != RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "admin access required",
			})
		}
		return c.Next()
	}
}

// UserID returns the authenticated user's ID, empty when unauthenticated.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
