package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Referral ReferralConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	AllowOrigins string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type TelegramConfig struct {
	BotToken    string
	BotUsername string
	ChannelID   int64 // закрытый канал: членство = пройден очный этап
	AdminIDs    []int64
}

type ReferralConfig struct {
	// Базовый URL регистрации на очный этап, к нему добавляются UTM-метки.
	RegistrationURL string
	// Ключ детерминированного шифрования PII. Пустой или нулевой ключ
	// отключает шифрование (данные хранятся открыто).
	CryptoKey string
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

// IsAdmin reports whether the id is in the configured admin list.
func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ReferralLink builds the tracking link handed out to a user:
// utm_source=referal, utm_medium/campaign/content carry the caller's tokens.
// Empty values serialize as empty parameters, they are not omitted.
func (r ReferralConfig) ReferralLink(medium, campaign, content string) string {
	base := strings.TrimRight(r.RegistrationURL, "/")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	parts := []string{
		"utm_source=referal",
		"utm_medium=" + url.QueryEscape(strings.TrimSpace(medium)),
		"utm_campaign=" + url.QueryEscape(strings.TrimSpace(campaign)),
		"utm_content=" + url.QueryEscape(strings.TrimSpace(content)),
	}
	return base + sep + strings.Join(parts, "&")
}

// ApplicationLink is the registration URL shown to users who have not passed
// the gate yet; tagged so the CRM can tell these sign-ups from referral ones.
func (r ReferralConfig) ApplicationLink() string {
	base := strings.TrimRight(r.RegistrationURL, "/")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "utm_source=tgbot"
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	channelID, _ := strconv.ParseInt(getEnv("TELEGRAM_CHANNEL_ID", "0"), 10, 64)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			AllowOrigins: getEnv("ALLOW_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "refbot"),
			Password: getEnv("DB_PASSWORD", "refbot"),
			Name:     getEnv("DB_NAME", "refbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Telegram: TelegramConfig{
			BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			BotUsername: getEnv("TELEGRAM_BOT_USERNAME", "RefBot"),
			ChannelID:   channelID,
			AdminIDs:    parseAdminIDs(getEnv("ADMIN_IDS", "")),
		},
		Referral: ReferralConfig{
			RegistrationURL: getEnv("REGISTRATION_URL", "https://example.com/register"),
			CryptoKey:       getEnv("CRYPTO_KEY", ""),
		},
	}

	return cfg, nil
}

func parseAdminIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
