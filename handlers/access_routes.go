// handlers/access_routes.go
package handlers

import (
	"net/url"

	"circle-progression-system/logger"
	"circle-progression-system/middleware"
	"circle-progression-system/models"
	"circle-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAccessRoutes(secured fiber.Router, eng *services.Engine, log *logger.Logger) {
	// Listing works without a presigner; only links need one.
	secured.Get("/premium/content", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"content": services.ListPremium(c.UserContext(), eng.Gate, eng.Catalog, userID(c)),
		})
	})

	secured.Get("/premium/content/:key", func(c *fiber.Ctx) error {
		if eng.Premium == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "premium content delivery is not configured",
			})
		}
		key, err := url.PathUnescape(c.Params("key"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid content key", "cause": err.Error()})
		}

		link, err := eng.Premium.Link(c.UserContext(), userID(c), key)
		if err != nil {
			return respondError(c, "premium content unavailable", err)
		}
		return c.JSON(link)
	})

	secured.Post("/challenges/authorize",
		middleware.RequireCapability(eng.Gate, string(models.CapabilityCreateChallenges)),
		func(c *fiber.Ctx) error {
			log.Info("🎯 [CHALLENGE] creation authorized", "user_id", userID(c))
			return c.JSON(fiber.Map{"authorized": true})
		})
}
