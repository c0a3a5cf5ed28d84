package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferralLink(t *testing.T) {
	r := ReferralConfig{RegistrationURL: "https://x.test/register"}

	link := r.ReferralLink("", "tok1", "tok2")
	assert.Equal(t, "https://x.test/register?utm_source=referal&utm_medium=&utm_campaign=tok1&utm_content=tok2", link)
}

func TestReferralLinkBaseWithQuery(t *testing.T) {
	r := ReferralConfig{RegistrationURL: "https://x.test/register?lang=ru"}

	link := r.ReferralLink("a", "b", "c")
	assert.Equal(t, "https://x.test/register?lang=ru&utm_source=referal&utm_medium=a&utm_campaign=b&utm_content=c", link)
}

func TestReferralLinkTrimsTrailingSlashAndSpaces(t *testing.T) {
	r := ReferralConfig{RegistrationURL: "https://x.test/register/"}

	link := r.ReferralLink(" nick ", "mail@x.ru", "+79001234567")
	assert.Equal(t, "https://x.test/register?utm_source=referal&utm_medium=nick&utm_campaign=mail%40x.ru&utm_content=%2B79001234567", link)
}

func TestApplicationLink(t *testing.T) {
	r := ReferralConfig{RegistrationURL: "https://x.test/register"}
	assert.Equal(t, "https://x.test/register?utm_source=tgbot", r.ApplicationLink())
}

func TestParseAdminIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 42}, parseAdminIDs("1, 42"))
	assert.Nil(t, parseAdminIDs(""))
	assert.Equal(t, []int64{7}, parseAdminIDs("7,oops,"))
}

func TestIsAdmin(t *testing.T) {
	tg := TelegramConfig{AdminIDs: []int64{10, 20}}
	assert.True(t, tg.IsAdmin(10))
	assert.False(t, tg.IsAdmin(30))
}
