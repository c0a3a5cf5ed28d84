package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/refbot/backend/internal/config"
)

const (
	TelegramUserKey = "telegram_user"
	UserIDKey       = "user_id"
)

type TelegramInitData struct {
	QueryID   string `json:"query_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// TelegramAuth validates Telegram Mini App init data and stores the
// authenticated user in the request context.
func TelegramAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		initData := c.Get("X-Telegram-Init-Data")
		if initData == "" {
			initData = c.Get("Authorization")
			initData = strings.TrimPrefix(initData, "tma ")
		}

		if initData == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing telegram init data",
			})
		}

		userData, err := ValidateTelegramInitData(initData, cfg.Telegram.BotToken)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid telegram init data: " + err.Error(),
			})
		}

		c.Locals(TelegramUserKey, userData)
		c.Locals(UserIDKey, userData.UserID)

		return c.Next()
	}
}

// ValidateTelegramInitData checks the init data HMAC against the bot token
// per the Telegram Web App login spec.
func ValidateTelegramInitData(initData, botToken string) (*TelegramInitData, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid auth_date")
	}
	if time.Now().Unix()-authDate > 3600 {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "auth_date expired")
	}

	values.Del("hash")
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dataCheckParts := make([]string, 0, len(keys))
	for _, key := range keys {
		dataCheckParts = append(dataCheckParts, key+"="+values.Get(key))
	}
	dataCheckString := strings.Join(dataCheckParts, "\n")

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(botToken))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	calculatedHash := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(calculatedHash), []byte(hash)) {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid hash")
	}

	userData := &TelegramInitData{
		QueryID:  values.Get("query_id"),
		AuthDate: authDate,
		Hash:     hash,
	}

	if userJSON := values.Get("user"); userJSON != "" {
		var payload struct {
			ID        int64  `json:"id"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
		}
		if err := json.Unmarshal([]byte(userJSON), &payload); err != nil {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid user payload")
		}
		userData.UserID = payload.ID
		userData.Username = payload.Username
		userData.FirstName = payload.FirstName
	}

	return userData, nil
}

func GetUserID(c *fiber.Ctx) int64 {
	userID, ok := c.Locals(UserIDKey).(int64)
	if !ok {
		return 0
	}
	return userID
}

func GetTelegramUser(c *fiber.Ctx) *TelegramInitData {
	userData, ok := c.Locals(TelegramUserKey).(*TelegramInitData)
	if !ok {
		return nil
	}
	return userData
}
