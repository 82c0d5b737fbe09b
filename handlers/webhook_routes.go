package handlers

import (
	"go.uber.org/zap"

	"github.com/gofiber/fiber/v2"

	"merch-loyalty-system/middleware"
	"merch-loyalty-system/services"
)

// SetupWebhookRoutes registers the service-to-service surface: the payment
// webhook that drives purchase XP and referral completion, and the signup
// hook that links a referred user to their referrer's code. Both sit behind
// the shared service token and both are idempotent, so the upstream can
// redeliver freely.
func SetupWebhookRoutes(app *fiber.App, loyalty *services.LoyaltyService, referrals *services.ReferralService, serviceToken string, logger *zap.Logger) {
	group := app.Group("/webhooks", middleware.ServiceAuthMiddleware(serviceToken, logger))

	group.Post("/payment", func(c *fiber.Ctx) error {
		var req struct {
			UserID     string `json:"user_id"`
			OrderID    string `json:"order_id"`
			TotalCents int64  `json:"total_cents"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.OrderID == "" {
			return badRequest(c, "user_id and order_id are required")
		}

		res, err := loyalty.AwardForPurchase(c.Context(), req.UserID, req.OrderID, req.TotalCents)
		if err != nil {
			logger.Error("purchase webhook failed",
				zap.String("user_id", req.UserID),
				zap.String("order_id", req.OrderID),
				zap.Error(err))
			return fail(c, err)
		}
		return ok(c, fiber.Map{
			"balance": res.Balance,
			"tier":    res.Tier,
			"applied": res.Applied,
		})
	})

	group.Post("/signup", func(c *fiber.Ctx) error {
		var req struct {
			UserID       string `json:"user_id"`
			ReferralCode string `json:"referral_code"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" {
			return badRequest(c, "user_id is required")
		}

		// Unknown or stale codes are quiet no-ops: signup never fails on a
		// bad referral code.
		if req.ReferralCode != "" {
			if err := referrals.Link(c.Context(), req.UserID, req.ReferralCode); err != nil {
				return fail(c, err)
			}
		}
		return ok(c, fiber.Map{"linked": req.ReferralCode != ""})
	})
}
