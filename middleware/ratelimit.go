// middleware/ratelimit.go
package middleware

import (
	"context"
	"time"

	"circle-progression-system/logger"
	"circle-progression-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// TierLookup resolves a user's current tier for display-grade decisions.
type TierLookup func(ctx context.Context, userID string) (models.Tier, error)

// TierRateLimiter applies the tier table's request budget per user and window.
// Anonymous requests share the beginner budget keyed by IP.
func TierRateLimiter(lookup TierLookup, window time.Duration, log *logger.Logger) fiber.Handler {
	limiters := make(map[models.Tier]fiber.Handler, len(models.Tiers))
	for _, info := range models.Tiers {
		info := info
		limiters[info.Tier] = limiter.New(limiter.Config{
			Max:        info.RateLimit,
			Expiration: window,
			KeyGenerator: func(c *fiber.Ctx) string {
				if userID, _ := c.Locals("user_id").(string); userID != "" {
					return info.Name + ":" + userID
				}
				return info.Name + ":ip:" + c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "rate limit exceeded",
					"tier":  info.Name,
					"limit": info.RateLimit,
				})
			},
		})
	}

	return func(c *fiber.Ctx) error {
		tier := models.TierBeginner
		if userID, _ := c.Locals("user_id").(string); userID != "" {
			t, err := lookup(c.UserContext(), userID)
			if err != nil {
				// beginner budget
				log.Warn("⚠️ [RATE_LIMIT] tier lookup failed", "user_id", userID, "error", err)
			} else if t.Valid() {
				tier = t
			}
		}
		return limiters[tier](c)
	}
}
