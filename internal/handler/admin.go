package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/middleware"
	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/service"
)

type gradeRequest struct {
	Threshold int      `json:"threshold"`
	Rewards   []string `json:"rewards"`
}

func (h *Handler) AdminStats(c *fiber.Ctx) error {
	users, err := h.userService.CountActive(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить статистику",
		})
	}
	referrals, err := h.referralSvc.TotalReferrals(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить статистику",
		})
	}
	pending, err := h.userService.PendingUsers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить статистику",
		})
	}

	return c.JSON(fiber.Map{
		"active_users":    users,
		"total_referrals": referrals,
		"pending_users":   len(pending),
	})
}

func (h *Handler) CreateGrade(c *fiber.Ctx) error {
	var req gradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	grade, err := h.gradeSvc.CreateGrade(c.Context(), req.Threshold, req.Rewards)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(grade)
}

func (h *Handler) UpdateGrade(c *fiber.Ctx) error {
	gradeID, err := c.ParamsInt("grade_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный идентификатор грейда",
		})
	}

	var req gradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	grade, err := h.gradeSvc.GetGrade(c.Context(), int64(gradeID))
	if errors.Is(err, service.ErrGradeNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Грейд не найден",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить грейд",
		})
	}

	grade.ReferralThreshold = req.Threshold
	grade.Rewards = model.EncodeRewards(req.Rewards)
	if err := h.gradeSvc.UpdateGrade(c.Context(), grade); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(grade)
}

func (h *Handler) DeleteGrade(c *fiber.Ctx) error {
	gradeID, err := c.ParamsInt("grade_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный идентификатор грейда",
		})
	}

	if err := h.gradeSvc.DeleteGrade(c.Context(), int64(gradeID)); err != nil {
		if errors.Is(err, service.ErrGradeNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Грейд не найден",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось удалить грейд",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) GradeReached(c *fiber.Ctx) error {
	gradeID, err := c.ParamsInt("grade_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный идентификатор грейда",
		})
	}

	users, err := h.gradeSvc.UsersForGrade(c.Context(), int64(gradeID))
	if errors.Is(err, service.ErrGradeNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Грейд не найден",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить список",
		})
	}

	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		claimed, err := h.gradeSvc.HasClaim(c.Context(), u.ID, int64(gradeID))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Не удалось получить список",
			})
		}
		out = append(out, fiber.Map{
			"user_id": u.ID,
			"name":    h.userService.DecryptedName(&u.User),
			"count":   u.Count,
			"claimed": claimed,
		})
	}
	return c.JSON(fiber.Map{"users": out})
}

type claimRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *Handler) CreateClaim(c *fiber.Ctx) error {
	gradeID, err := c.ParamsInt("grade_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный идентификатор грейда",
		})
	}

	var req claimRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	err = h.gradeSvc.Claim(c.Context(), req.UserID, int64(gradeID), middleware.GetAdminID(c))
	if errors.Is(err, service.ErrAlreadyClaimed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Награда уже выдана",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось записать выдачу",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// ImportCSV accepts the CRM export as multipart form file "file".
func (h *Handler) ImportCSV(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Прикрепите CSV-файл в поле file",
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Не удалось открыть файл",
		})
	}
	defer f.Close()

	rows, err := service.ParseImportCSV(f)
	if err != nil {
		if errors.Is(err, service.ErrMissingColumns) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "В файле нет обязательных колонок",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Не удалось разобрать CSV",
		})
	}

	summary := h.attributionSvc.Import(c.Context(), rows)
	return c.JSON(summary)
}

func (h *Handler) ExportUsers(c *fiber.Ctx) error {
	data, err := h.exportSvc.ExportUsers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось выгрузить участников",
		})
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="users.csv"`)
	return c.Send(data)
}

func (h *Handler) ExportTokenKey(c *fiber.Ctx) error {
	data, err := h.exportSvc.ExportTokenKey(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось выгрузить ключ токенов",
		})
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="token_key.csv"`)
	return c.Send(data)
}
