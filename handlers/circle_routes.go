// handlers/circle_routes.go
package handlers

import (
	"strconv"

	"circle-progression-system/logger"
	"circle-progression-system/models"
	"circle-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

type recordActivityRequest struct {
	ActivityType string          `json:"activity_type" validate:"required,max=64"`
	Metadata     models.Metadata `json:"metadata"`
}

func SetupCircleRoutes(secured fiber.Router, eng *services.Engine, log *logger.Logger) {
	secured.Get("/circle/profile", func(c *fiber.Ctx) error {
		profile, err := eng.Progression.Profile(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load circle profile", err)
		}
		return c.JSON(profile)
	})

	secured.Get("/circle/history", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))

		history, err := eng.Progression.History(c.UserContext(), userID(c), page, size)
		if err != nil {
			return respondError(c, "failed to fetch points history", err)
		}
		return c.JSON(history)
	})

	secured.Get("/circle/leaderboard", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "10"))

		board, err := eng.Progression.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return respondError(c, "failed to fetch leaderboard", err)
		}
		return c.JSON(fiber.Map{"leaderboard": board})
	})

	secured.Get("/activities", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))

		events, err := eng.Activity.History(c.UserContext(), userID(c), page, size)
		if err != nil {
			return respondError(c, "failed to fetch activity history", err)
		}
		return c.JSON(events)
	})

	// Recording an activity can make achievements and easter eggs eligible; they
	// unlock right away.
	secured.Post("/activities", func(c *fiber.Ctx) error {
		var req recordActivityRequest
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		uid := userID(c)

		eventID, err := eng.Activity.RecordExternal(c.UserContext(), uid, req.ActivityType, req.Metadata)
		if err != nil {
			return respondError(c, "failed to record activity", err)
		}

		unlocked, err := eng.Coordinator.UnlockEligible(c.UserContext(), uid)
		if err != nil {
			// The event is stored; the next activity retries the unlocks.
			log.Error("❌ [ACTIVITY] auto-unlock failed", "user_id", uid, "event_id", eventID, "error", err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"event_id": eventID,
			"unlocked": unlocked,
		})
	})
}
