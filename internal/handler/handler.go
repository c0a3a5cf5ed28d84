package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/config"
	"github.com/refbot/backend/internal/service"
)

type Handler struct {
	cfg            *config.Config
	userService    *service.UserService
	referralSvc    *service.ReferralService
	gradeSvc       *service.GradeService
	attributionSvc *service.AttributionService
	exportSvc      *service.ExportService
}

func New(
	cfg *config.Config,
	userService *service.UserService,
	referralSvc *service.ReferralService,
	gradeSvc *service.GradeService,
	attributionSvc *service.AttributionService,
	exportSvc *service.ExportService,
) *Handler {
	return &Handler{
		cfg:            cfg,
		userService:    userService,
		referralSvc:    referralSvc,
		gradeSvc:       gradeSvc,
		attributionSvc: attributionSvc,
		exportSvc:      exportSvc,
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
