package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/middleware"
	"github.com/refbot/backend/internal/service"
)

func (h *Handler) GetReferralStats(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	stats, err := h.referralSvc.Stats(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить статистику",
		})
	}

	return c.JSON(stats)
}

func (h *Handler) GetReferralLink(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	user, err := h.userService.GetUser(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Пользователь не найден",
		})
	}

	link, err := h.referralSvc.Link(c.Context(), user)
	if errors.Is(err, service.ErrProfileIncomplete) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Сначала укажите email и телефон",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось построить ссылку",
		})
	}

	return c.JSON(fiber.Map{
		"link": link,
	})
}

func (h *Handler) GetMyReferrals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	referrals, err := h.referralSvc.ReferralsOf(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить список",
		})
	}

	out := make([]fiber.Map, 0, len(referrals))
	for _, r := range referrals {
		name := "Аноним"
		if referred, err := h.userService.GetUser(c.Context(), r.ReferredID); err == nil {
			name = h.userService.DecryptedName(referred)
		}
		out = append(out, fiber.Map{
			"user_id":    r.ReferredID,
			"name":       name,
			"created_at": r.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"referrals": out})
}

func (h *Handler) GetLeaderboard(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	top, err := h.referralSvc.TopReferrers(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить рейтинг",
		})
	}

	entries := make([]fiber.Map, 0, len(top))
	for _, e := range top {
		entries = append(entries, fiber.Map{
			"user_id": e.ID,
			"name":    h.userService.DecryptedName(&e.User),
			"count":   e.Count,
		})
	}

	return c.JSON(fiber.Map{
		"leaderboard": entries,
	})
}
