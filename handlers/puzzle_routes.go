// handlers/puzzle_routes.go
package handlers

import (
	"circle-progression-system/logger"
	"circle-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

type generatePuzzleRequest struct {
	Type       string `json:"type" validate:"required"`
	Difficulty string `json:"difficulty" validate:"required"`
}

type solvePuzzleRequest struct {
	Solution string `json:"solution" validate:"required,max=256"`
}

func SetupPuzzleRoutes(secured fiber.Router, eng *services.Engine, log *logger.Logger) {
	secured.Get("/puzzles", func(c *fiber.Ctx) error {
		uid := userID(c)
		open, err := eng.Puzzles.Open(c.UserContext(), uid)
		if err != nil {
			return respondError(c, "failed to list puzzles", err)
		}
		return c.JSON(fiber.Map{
			"puzzles":      open,
			"difficulties": eng.Puzzles.Difficulties(c.UserContext(), uid),
		})
	})

	secured.Post("/puzzles/generate", func(c *fiber.Ctx) error {
		var req generatePuzzleRequest
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		t, err := services.ParsePuzzleType(req.Type)
		if err != nil {
			return respondError(c, "invalid puzzle type", err)
		}
		d, err := services.ParseDifficulty(req.Difficulty)
		if err != nil {
			return respondError(c, "invalid difficulty", err)
		}

		puzzle, err := eng.Puzzles.Generate(c.UserContext(), userID(c), t, d)
		if err != nil {
			return respondError(c, "failed to generate puzzle", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"puzzle":          puzzle,
			"points_on_solve": services.PuzzlePoints(d, t),
		})
	})

	secured.Post("/puzzles/:id/solve", func(c *fiber.Ctx) error {
		var req solvePuzzleRequest
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		uid := userID(c)

		out, err := eng.Puzzles.Verify(c.UserContext(), uid, c.Params("id"), req.Solution)
		if err != nil {
			return respondError(c, "failed to verify solution", err)
		}
		if !out.Correct {
			status := outcomeStatus(out.Reason)
			if out.Reason == services.ReasonIncorrectSolution {
				status = fiber.StatusOK
			}
			return c.Status(status).JSON(fiber.Map{"result": out})
		}

		unlocked, err := eng.Coordinator.UnlockEligible(c.UserContext(), uid)
		if err != nil {
			log.Error("❌ [PUZZLE] auto-unlock after solve failed", "user_id", uid, "puzzle_id", out.PuzzleID, "error", err)
		}
		return c.JSON(fiber.Map{"result": out, "unlocked": unlocked})
	})
}
