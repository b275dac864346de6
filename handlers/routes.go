// handlers/routes.go
package handlers

import (
	"context"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/middleware"
	"circle-progression-system/models"
	"circle-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes mounts every secured route under /s.
// The gateway forwards /api/v1/circle/s/... to /s/...
func SetupRoutes(app *fiber.App, eng *services.Engine, log *logger.Logger, rateWindow time.Duration) {
	tierOf := func(ctx context.Context, userID string) (models.Tier, error) {
		snap, err := eng.Progression.Snapshot(ctx, userID)
		return snap.Tier, err
	}

	secured := app.Group("/s",
		middleware.UserContextMiddleware(log),
		middleware.TierRateLimiter(tierOf, rateWindow, log),
	)

	SetupCircleRoutes(secured, eng, log)
	SetupUnlockRoutes(secured, eng, log)
	SetupEasterEggRoutes(secured, eng, log)
	SetupPuzzleRoutes(secured, eng, log)
	SetupAccessRoutes(secured, eng, log)

	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	SetupAdminRoutes(admin, eng, log)
}
