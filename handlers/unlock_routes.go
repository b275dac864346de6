// handlers/unlock_routes.go
package handlers

import (
	"circle-progression-system/catalog"
	"circle-progression-system/logger"
	"circle-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUnlockRoutes(secured fiber.Router, eng *services.Engine, log *logger.Logger) {
	list := func(category catalog.Category) fiber.Handler {
		return func(c *fiber.Ctx) error {
			ev, err := eng.Evaluator.Evaluate(c.UserContext(), userID(c))
			if err != nil {
				return respondError(c, "failed to evaluate unlockables", err)
			}
			return c.JSON(fiber.Map{"items": itemViews(eng.Catalog, category, ev)})
		}
	}

	// lookup returns false after writing a 404 when id is not an item of category.
	lookup := func(c *fiber.Ctx, category catalog.Category) (catalog.Unlockable, bool, error) {
		u, ok := eng.Catalog.Get(c.Params("id"))
		if !ok || u.Category != category {
			return u, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "unknown " + string(category),
				"cause": c.Params("id"),
			})
		}
		return u, true, nil
	}

	secured.Get("/art-keys", list(catalog.CategoryArtKey))

	secured.Post("/art-keys/:id/unlock", func(c *fiber.Ctx) error {
		u, ok, err := lookup(c, catalog.CategoryArtKey)
		if !ok {
			return err
		}
		out, err := eng.Coordinator.AttemptUnlock(c.UserContext(), userID(c), u.ID)
		if err != nil {
			return respondError(c, "failed to unlock art key", err)
		}
		return c.Status(outcomeStatus(out.Reason)).JSON(out)
	})

	secured.Post("/art-keys/:id/use", func(c *fiber.Ctx) error {
		u, ok, err := lookup(c, catalog.CategoryArtKey)
		if !ok {
			return err
		}
		row, err := eng.Coordinator.RecordUse(c.UserContext(), userID(c), u.ID)
		if err != nil {
			return respondError(c, "failed to record art key use", err)
		}
		log.Debug("🔑 [ART_KEY] used", "user_id", userID(c), "art_key", u.ID, "usage_count", row.UsageCount)
		return c.JSON(row)
	})

	secured.Get("/achievements", list(catalog.CategoryAchievement))

	secured.Get("/achievements/:id/progress", func(c *fiber.Ctx) error {
		u, ok, err := lookup(c, catalog.CategoryAchievement)
		if !ok {
			return err
		}
		ev, err := eng.Evaluator.Evaluate(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to evaluate achievement", err)
		}
		return c.JSON(newItemView(u, ev))
	})
}

type triggerRequest struct {
	Method  string `json:"method" validate:"required"`
	Payload string `json:"payload" validate:"max=512"`
}

func SetupEasterEggRoutes(secured fiber.Router, eng *services.Engine, log *logger.Logger) {
	secured.Post("/easter-eggs/trigger", func(c *fiber.Ctx) error {
		var req triggerRequest
		if ok, err := parseBody(c, &req); !ok {
			return err
		}

		out, err := eng.EasterEggs.Trigger(c.UserContext(), userID(c), catalog.TriggerMethod(req.Method), req.Payload)
		if err != nil {
			return respondError(c, "failed to process trigger", err)
		}
		if out.Reason == services.ReasonNoMatch {
			return c.JSON(out)
		}
		return c.Status(outcomeStatus(out.Reason)).JSON(out)
	})

	secured.Get("/easter-eggs/discovered", func(c *fiber.Ctx) error {
		eggs, err := eng.EasterEggs.Discovered(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to list discovered easter eggs", err)
		}
		return c.JSON(fiber.Map{"discovered": eggs, "total": len(eng.Catalog.ByCategory(catalog.CategoryEasterEgg))})
	})

	secured.Get("/easter-eggs/hints", func(c *fiber.Ctx) error {
		hints, err := eng.EasterEggs.Hints(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load hints", err)
		}
		return c.JSON(fiber.Map{"hints": hints})
	})
}
