package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"merch-loyalty-system/services"
)

// ok wraps a successful payload in the response envelope.
func ok(c *fiber.Ctx, data fiber.Map) error {
	body := fiber.Map{"ok": true}
	for k, v := range data {
		body[k] = v
	}
	return c.JSON(body)
}

// fail maps a service error onto the envelope and the matching status code.
// Everything crossing this boundary is one of the service sentinels; raw
// errors never leak to clients.
func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"ok": false,
		"error": fiber.Map{
			"kind":    services.ErrorKind(err),
			"message": err.Error(),
		},
	})
}

// badRequest rejects malformed input before it reaches a service.
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"ok": false,
		"error": fiber.Map{
			"kind":    "BadRequest",
			"message": message,
		},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidRedemptionAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientBalance):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrDuplicateEvent):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrRedemptionFailed), errors.Is(err, services.ErrCodeGenerationExhausted):
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusServiceUnavailable
	}
}
