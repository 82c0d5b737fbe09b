package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"merch-loyalty-system/middleware"
	"merch-loyalty-system/services"
)

// SetupLoyaltyRoutes registers the user-facing surface. Everything here
// requires the gateway's user context.
func SetupLoyaltyRoutes(
	app *fiber.App,
	loyalty *services.LoyaltyService,
	referrals *services.ReferralService,
	redemption *services.RedemptionService,
	leaderboard *services.Leaderboard,
) {
	group := app.Group("/loyalty", middleware.UserContextMiddleware())

	group.Get("/me", func(c *fiber.Ctx) error {
		overview, err := loyalty.Me(c.Context(), middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.Map{
			"profile":        overview.Profile,
			"next_tier":      overview.NextTier,
			"points_to_next": overview.PointsToNext,
		})
	})

	group.Get("/history", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))
		entries, total, err := loyalty.History(c.Context(), middleware.UserID(c), page, size)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.Map{
			"entries": entries,
			"total":   total,
			"page":    page,
		})
	})

	group.Get("/badges", func(c *fiber.Ctx) error {
		owned, err := loyalty.Badges(c.Context(), middleware.UserID(c))
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.Map{"badges": owned})
	})

	group.Put("/profile", func(c *fiber.Ctx) error {
		var req struct {
			DisplayName   string `json:"display_name"`
			BirthdayMonth *int   `json:"birthday_month"`
			BirthdayDay   *int   `json:"birthday_day"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		profile, err := loyalty.UpdateProfile(c.Context(), middleware.UserID(c), req.DisplayName, req.BirthdayMonth, req.BirthdayDay)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.Map{"profile": profile})
	})

	group.Get("/referral", func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		code, err := referrals.GetOrCreateCode(c.Context(), userID)
		if err != nil {
			return fail(c, err)
		}
		stats, err := referrals.Stats(c.Context(), userID)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.Map{
			"code":  code,
			"stats": stats,
		})
	})

	group.Get("/redemptions", func(c *fiber.Ctx) error {
		return ok(c, fiber.Map{"options": redemption.Options()})
	})

	group.Post("/redeem", func(c *fiber.Ctx) error {
		var req struct {
			Points    int64  `json:"points"`
			RequestID string `json:"request_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.RequestID == "" {
			return badRequest(c, "points and request_id are required")
		}
		code, balance, err := redemption.Redeem(c.Context(), middleware.UserID(c), req.Points, req.RequestID)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.Map{
			"discount_code": code,
			"balance":       balance,
		})
	})

	group.Get("/leaderboard", func(c *fiber.Ctx) error {
		entries, err := leaderboard.Top(c.Context())
		if err != nil {
			return fail(c, err)
		}
		if entries == nil {
			entries = []services.LeaderboardEntry{}
		}
		return ok(c, fiber.Map{"leaderboard": entries})
	})
}
