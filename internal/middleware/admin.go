package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/config"
	"github.com/refbot/backend/internal/repository"
	"github.com/refbot/backend/internal/service"
)

const (
	AdminKey   = "is_admin"
	AdminIDKey = "admin_id"
)

// AdminAuth passes users listed in the config or flagged as admin in storage.
func AdminAuth(cfg *config.Config, userSvc *service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		isAdmin := cfg.Telegram.IsAdmin(userID)
		if !isAdmin {
			user, err := userSvc.GetUser(c.Context(), userID)
			if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "failed to check admin status",
				})
			}
			isAdmin = err == nil && user.IsAdmin
		}

		if !isAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "access denied",
			})
		}

		c.Locals(AdminKey, true)
		c.Locals(AdminIDKey, userID)

		return c.Next()
	}
}

func GetAdminID(c *fiber.Ctx) int64 {
	adminID, ok := c.Locals(AdminIDKey).(int64)
	if !ok {
		return 0
	}
	return adminID
}

func IsAdmin(c *fiber.Ctx) bool {
	isAdmin, ok := c.Locals(AdminKey).(bool)
	return ok && isAdmin
}
