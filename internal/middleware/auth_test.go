package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:TEST-TOKEN"

// signInitData produces init data the way the Telegram client does.
func signInitData(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+values.Get(key))
	}

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(botToken))
	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(strings.Join(parts, "\n")))

	values.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return values.Encode()
}

func TestValidateTelegramInitData(t *testing.T) {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("query_id", "AAH1")
	values.Set("user", `{"id":42,"username":"ivan","first_name":"Иван"}`)

	data, err := ValidateTelegramInitData(signInitData(values, testBotToken), testBotToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), data.UserID)
	assert.Equal(t, "ivan", data.Username)
	assert.Equal(t, "Иван", data.FirstName)
}

func TestValidateTelegramInitDataTampered(t *testing.T) {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":42}`)

	signed := signInitData(values, testBotToken)
	signed = strings.Replace(signed, "42", "43", 1)

	_, err := ValidateTelegramInitData(signed, testBotToken)
	assert.Error(t, err)
}

func TestValidateTelegramInitDataWrongToken(t *testing.T) {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":42}`)

	_, err := ValidateTelegramInitData(signInitData(values, "other:token"), testBotToken)
	assert.Error(t, err)
}

func TestValidateTelegramInitDataExpired(t *testing.T) {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10))
	values.Set("user", `{"id":42}`)

	_, err := ValidateTelegramInitData(signInitData(values, testBotToken), testBotToken)
	assert.Error(t, err)
}

func TestValidateTelegramInitDataMissingHash(t *testing.T) {
	_, err := ValidateTelegramInitData("auth_date=123", testBotToken)
	assert.Error(t, err)
}
