package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ServiceAuthMiddleware validates the shared service token on
// service-to-service routes (the payment webhook). The token is injected
// from configuration; an empty token disables the routes rather than
// leaving them open.
func ServiceAuthMiddleware(token string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			logger.Warn("service route called but no service token configured", zap.String("path", c.Path()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"ok": false,
				"error": fiber.Map{
					"kind":    "StoreUnavailable",
					"message": "service authentication not configured",
				},
			})
		}

		got := c.Get("X-Service-Token")
		if got == "" {
			// Gateways that forward Authorization instead.
			got = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn("rejected service call", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"ok": false,
				"error": fiber.Map{
					"kind":    "NotAuthenticated",
					"message": "invalid service token",
				},
			})
		}
		return c.Next()
	}
}
