// middleware/tier.go
package middleware

import (
	"context"

	"circle-progression-system/models"

	"github.com/gofiber/fiber/v2"
)

// TierGate answers authorization questions. services.Gate satisfies it.
type TierGate interface {
	HasTier(ctx context.Context, userID string, minTier models.Tier) bool
	HasCapability(ctx context.Context, userID, capability string) bool
}

// RequireTier rejects users below minTier with 403.
func RequireTier(gate TierGate, minTier models.Tier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if !gate.HasTier(c.UserContext(), userID, minTier) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":         "insufficient tier",
				"reason":        "insufficient_tier",
				"required_tier": minTier.String(),
			})
		}
		return c.Next()
	}
}

// RequireCapability rejects users without the capability (tier permission or active grant).
func RequireCapability(gate TierGate, capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if !gate.HasCapability(c.UserContext(), userID, capability) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":      "missing capability",
				"reason":     "missing_capability",
				"capability": capability,
			})
		}
		return c.Next()
	}
}
