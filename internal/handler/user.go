package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/middleware"
	"github.com/refbot/backend/internal/repository"
	"github.com/refbot/backend/internal/service"
)

func (h *Handler) GetMe(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	user, err := h.userService.GetUser(c.Context(), userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		// first contact through the mini app, register on the fly
		tu := middleware.GetTelegramUser(c)
		user, err = h.userService.GetOrCreateUser(c.Context(), service.TelegramUser{
			ID:        userID,
			Username:  tu.Username,
			FirstName: tu.FirstName,
			IsAdmin:   h.cfg.Telegram.IsAdmin(userID),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось получить пользователя",
		})
	}

	return c.JSON(fiber.Map{
		"id":            user.ID,
		"name":          h.userService.DecryptedName(user),
		"is_subscribed": user.IsSubscribed,
		"is_verified":   user.IsVerified,
		"has_contacts":  user.HasContacts(),
	})
}

type contactsRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *Handler) UpdateContacts(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	var req contactsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	if req.Email != "" {
		if err := h.userService.UpdateEmail(c.Context(), userID, req.Email); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Не удалось сохранить email",
			})
		}
	}
	if req.Phone != "" {
		if err := h.userService.UpdatePhone(c.Context(), userID, req.Phone); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Не удалось сохранить телефон",
			})
		}
	}

	return c.JSON(fiber.Map{"success": true})
}
