package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/middleware"
)

func (h *Handler) GetGrades(c *fiber.Ctx) error {
	grades, err := h.gradeSvc.ListGrades(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить грейды",
		})
	}

	out := make([]fiber.Map, 0, len(grades))
	for _, g := range grades {
		out = append(out, fiber.Map{
			"id":        g.ID,
			"threshold": g.ReferralThreshold,
			"rewards":   g.RewardList(),
		})
	}
	return c.JSON(fiber.Map{"grades": out})
}

func (h *Handler) GetMyGrades(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	achieved, count, err := h.gradeSvc.AchievedByUser(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить грейды",
		})
	}

	claims, err := h.gradeSvc.UserClaims(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить выдачи",
		})
	}
	claimed := make(map[int64]bool, len(claims))
	for _, cl := range claims {
		claimed[cl.GradeID] = true
	}

	out := make([]fiber.Map, 0, len(achieved))
	for _, g := range achieved {
		out = append(out, fiber.Map{
			"id":        g.ID,
			"threshold": g.ReferralThreshold,
			"rewards":   g.RewardList(),
			"claimed":   claimed[g.ID],
		})
	}

	return c.JSON(fiber.Map{
		"referral_count": count,
		"achieved":       out,
	})
}
