package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"merch-loyalty-system/services"
)

// UserContextMiddleware extracts the identity headers the gateway sets.
// Requests without X-User-ID never reach a handler.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"ok": false,
				"error": fiber.Map{
					"kind":    services.ErrorKind(services.ErrNotAuthenticated),
					"message": "missing X-User-ID; requests must come through the gateway",
				},
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		return c.Next()
	}
}

// RequireRole gates a route on one of the gateway-provided roles.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"ok": false,
			"error": fiber.Map{
				"kind":    "Forbidden",
				"message": "insufficient role",
			},
		})
	}
}

// UserID returns the authenticated user id set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
