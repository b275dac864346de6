// handlers/admin_routes.go
package handlers

import (
	"circle-progression-system/logger"
	"circle-progression-system/models"
	"circle-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

type grantPointsRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Points int64  `json:"points" validate:"required,gt=0,lte=100000"`
	Note   string `json:"note" validate:"max=256"`
}

func SetupAdminRoutes(admin fiber.Router, eng *services.Engine, log *logger.Logger) {
	admin.Post("/points/grant", func(c *fiber.Ctx) error {
		var req grantPointsRequest
		if ok, err := parseBody(c, &req); !ok {
			return err
		}

		md := models.Metadata{"granted_by": userID(c)}
		if req.Note != "" {
			md["note"] = req.Note
		}
		res, err := eng.Ledger.Award(c.UserContext(), req.UserID, req.Points, "admin:grant", md)
		if err != nil {
			return respondError(c, "failed to grant points", err)
		}

		log.Info("🛠️ [ADMIN] points granted", "admin_id", userID(c), "user_id", req.UserID, "points", req.Points)
		return c.JSON(fiber.Map{"user_id": req.UserID, "award": res})
	})
}
