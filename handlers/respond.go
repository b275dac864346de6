// handlers/respond.go
package handlers

import (
	"errors"
	"strings"

	"circle-progression-system/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// respondError maps engine errors to status codes and the usual error body.
func respondError(c *fiber.Ctx, msg string, err error) error {
	var (
		v  *services.ValidationError
		br *services.BusinessRuleError
		iv *services.InvariantError
	)
	switch {
	case errors.As(err, &v):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "cause": v.Error()})
	case errors.As(err, &br):
		status := fiber.StatusBadRequest
		if br.Reason.Denial() {
			status = fiber.StatusForbidden
		}
		return c.Status(status).JSON(fiber.Map{"error": msg, "reason": br.Reason, "cause": br.Message})
	case errors.As(err, &iv):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg, "cause": iv.Error()})
	default:
		// transient and unclassified failures share one opaque cause
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg, "cause": "storage unavailable, retry later"})
	}
}

// outcomeStatus is 200 for a successful outcome and 400/403 for a rule outcome.
func outcomeStatus(reason services.Reason) int {
	switch {
	case reason == "":
		return fiber.StatusOK
	case reason.Denial():
		return fiber.StatusForbidden
	default:
		return fiber.StatusBadRequest
	}
}

// parseBody decodes and validates a JSON request body. When it returns false the
// 400 response has already been written.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
	}
	if err := validate.Struct(out); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
			}
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "cause": strings.Join(fields, ", ")})
	}
	return true, nil
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
