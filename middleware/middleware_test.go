package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(c *fiber.Ctx) error { return c.SendString("ok") }

func status(t *testing.T, app *fiber.App, method, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("tok", logger.NewNop(), "/healthz"))
	app.Get("/healthz", ok)
	app.Get("/x", ok)

	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/healthz", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, "GET", "/x", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, "GET", "/x", map[string]string{"Authorization": "Bearer nope"}))
	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/x", map[string]string{"Authorization": "Bearer tok"}))
}

func TestUserContextAndRole(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware(logger.NewNop()))
	app.Get("/public", ok)
	app.Get("/s/me", func(c *fiber.Ctx) error { return c.SendString(c.Locals("user_id").(string)) })
	app.Get("/s/admin", RequireRole("admin"), ok)

	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/public", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, "GET", "/s/me", nil))
	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/s/me", map[string]string{"X-User-ID": "u1"}))
	assert.Equal(t, fiber.StatusForbidden, status(t, app, "GET", "/s/admin", map[string]string{"X-User-ID": "u1", "X-User-Roles": "user"}))
	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/s/admin", map[string]string{"X-User-ID": "u1", "X-User-Roles": "user, Admin"}))
}

type stubGate struct {
	tier models.Tier
	caps map[string]bool
}

func (g stubGate) HasTier(_ context.Context, _ string, min models.Tier) bool { return g.tier >= min }
func (g stubGate) HasCapability(_ context.Context, _ string, c string) bool {
	return g.caps[c]
}

func TestRequireTierAndCapability(t *testing.T) {
	gate := stubGate{tier: models.TierArtist, caps: map[string]bool{"access_premium": true}}
	app := fiber.New()
	app.Get("/master", RequireTier(gate, models.TierMaster), ok)
	app.Get("/artist", RequireTier(gate, models.TierArtist), ok)
	app.Get("/premium", RequireCapability(gate, "access_premium"), ok)
	app.Get("/mod", RequireCapability(gate, "moderate"), ok)

	assert.Equal(t, fiber.StatusForbidden, status(t, app, "GET", "/master", nil))
	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/artist", nil))
	assert.Equal(t, fiber.StatusOK, status(t, app, "GET", "/premium", nil))
	assert.Equal(t, fiber.StatusForbidden, status(t, app, "GET", "/mod", nil))
}

func TestTierRateLimiter(t *testing.T) {
	tiers := map[string]models.Tier{"low": models.TierBeginner, "high": models.TierApprentice}
	lookup := func(_ context.Context, userID string) (models.Tier, error) {
		if userID == "broken" {
			return 0, errors.New("db down")
		}
		return tiers[userID], nil
	}
	app := fiber.New()
	app.Use(UserContextMiddleware(logger.NewNop()))
	app.Use(TierRateLimiter(lookup, time.Minute, logger.NewNop()))
	app.Get("/s/x", ok)

	hit := func(user string, n int) (okCount int, last int) {
		for i := 0; i < n; i++ {
			last = status(t, app, "GET", "/s/x", map[string]string{"X-User-ID": user})
			if last == fiber.StatusOK {
				okCount++
			}
		}
		return okCount, last
	}

	n, last := hit("low", 51)
	assert.Equal(t, 50, n)
	assert.Equal(t, fiber.StatusTooManyRequests, last)

	n, _ = hit("high", 75)
	assert.Equal(t, 75, n)

	n, last = hit("broken", 51)
	assert.Equal(t, 50, n)
	assert.Equal(t, fiber.StatusTooManyRequests, last)
}
