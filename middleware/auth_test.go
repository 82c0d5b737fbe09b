package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp() *fiber.App {
	app := fiber.New()
	app.Get("/secured", UserContextMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "user_id": UserID(c)})
	})
	app.Get("/admin", UserContextMiddleware(), RequireRole("admin"), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Post("/service", ServiceAuthMiddleware("sekrit", zap.NewNop()), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func TestUserContextRequired(t *testing.T) {
	app := testApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/secured", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.OK)
	assert.Equal(t, "NotAuthenticated", body.Error.Kind)
}

func TestUserContextPassesIdentity(t *testing.T) {
	app := testApp()

	req := httptest.NewRequest("GET", "/secured", nil)
	req.Header.Set("X-User-ID", "u-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "u-123", body.UserID)
}

func TestRequireRole(t *testing.T) {
	app := testApp()

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-User-ID", "u-123")
	req.Header.Set("X-User-Roles", "customer")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-User-ID", "u-123")
	req.Header.Set("X-User-Roles", "customer, admin")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServiceAuth(t *testing.T) {
	app := testApp()

	resp, err := app.Test(httptest.NewRequest("POST", "/service", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("POST", "/service", nil)
	req.Header.Set("X-Service-Token", "sekrit")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Bearer form is accepted too.
	req = httptest.NewRequest("POST", "/service", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
