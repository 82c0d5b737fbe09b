package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"merch-loyalty-system/middleware"
	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
	"merch-loyalty-system/store"
	"merch-loyalty-system/utils"
)

// SetupAdminRoutes registers the operator surface: badge catalog management
// and manual point adjustments. Routes require the gateway user context plus
// the admin role.
func SetupAdminRoutes(
	app *fiber.App,
	loyalty *services.LoyaltyService,
	badges *store.Badges,
	assets *utils.AssetStore,
	logger *zap.Logger,
) {
	group := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	group.Get("/badges", func(c *fiber.Ctx) error {
		catalog, err := badges.Catalog(c.Context())
		if err != nil {
			return fail(c, services.ErrStoreUnavailable)
		}
		return ok(c, fiber.Map{"badges": catalog})
	})

	// Multipart: name, description, bonus_points, criteria (JSON object of
	// threshold by stat key), optional icon file.
	group.Post("/badges", func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.FormValue("name"))
		if name == "" {
			return badRequest(c, "name is required")
		}

		var criteria models.Criteria
		if raw := c.FormValue("criteria"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &criteria); err != nil {
				return badRequest(c, "criteria must be a JSON object of integer thresholds")
			}
		}
		bonus, err := strconv.ParseInt(c.FormValue("bonus_points", "0"), 10, 64)
		if err != nil || bonus < 0 {
			return badRequest(c, "bonus_points must be a non-negative integer")
		}

		code := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
		badge := &models.Badge{
			Code:        code,
			Name:        name,
			Description: c.FormValue("description"),
			Criteria:    criteria,
			BonusPoints: bonus,
		}

		if icon, ferr := c.FormFile("icon"); ferr == nil && icon != nil {
			if assets == nil {
				return badRequest(c, "icon uploads are not configured")
			}
			url, uerr := assets.UploadBadgeIcon(c.Context(), code, icon)
			if uerr != nil {
				logger.Error("badge icon upload failed", zap.String("badge", code), zap.Error(uerr))
				return fail(c, services.ErrStoreUnavailable)
			}
			badge.IconURL = url
		}

		if err := badges.CreateBadge(c.Context(), badge); err != nil {
			return fail(c, err)
		}
		logger.Info("badge created", zap.String("badge", code), zap.String("by", middleware.UserID(c)))
		return ok(c, fiber.Map{"badge": badge})
	})

	group.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID    string `json:"user_id"`
			Points    int64  `json:"points"`
			Reason    string `json:"reason"`
			RequestID string `json:"request_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" || req.RequestID == "" {
			return badRequest(c, "user_id and request_id are required")
		}
		if req.Points == 0 {
			return badRequest(c, "points must be non-zero")
		}

		res, err := loyalty.GrantAdjustment(c.Context(), req.UserID, req.Points, req.Reason, req.RequestID)
		if err != nil {
			return fail(c, err)
		}
		logger.Info("manual adjustment",
			zap.String("user_id", req.UserID),
			zap.Int64("points", req.Points),
			zap.String("by", middleware.UserID(c)))
		return ok(c, fiber.Map{
			"balance": res.Balance,
			"tier":    res.Tier,
			"applied": res.Applied,
		})
	})
}
