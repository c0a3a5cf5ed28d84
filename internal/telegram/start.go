package telegram

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/refbot/backend/internal/service"
)

func (b *Bot) handleStart(c tele.Context) error {
	sender := c.Sender()

	user, err := b.userSvc.GetOrCreateUser(context.Background(), service.TelegramUser{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		IsAdmin:   b.cfg.Telegram.IsAdmin(sender.ID),
	})
	if err != nil {
		return err
	}

	b.states.clear(sender.ID)

	if !user.IsSubscribed && !b.cfg.Telegram.IsAdmin(sender.ID) {
		return b.sendGatePrompt(c)
	}
	if !user.HasContacts() {
		return b.startRegistration(c)
	}
	return b.sendMainMenu(c)
}

func (b *Bot) handleCheckSubscription(c tele.Context) error {
	sender := c.Sender()

	member, err := b.isChannelMember(sender.ID)
	if err != nil {
		return c.Send("Не удалось проверить подписку, попробуйте позже.")
	}
	if !member {
		return c.Respond(&tele.CallbackResponse{
			Text:      "Вы ещё не в канале. Подайте заявку и дождитесь одобрения.",
			ShowAlert: true,
		})
	}

	if _, err := b.userSvc.GetOrCreateUser(context.Background(), service.TelegramUser{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		IsAdmin:   b.cfg.Telegram.IsAdmin(sender.ID),
	}); err != nil {
		return err
	}
	if err := b.userSvc.SetSubscribed(context.Background(), sender.ID, true); err != nil {
		return err
	}

	user, err := b.userSvc.GetUser(context.Background(), sender.ID)
	if err != nil {
		return err
	}
	if !user.HasContacts() {
		return b.startRegistration(c)
	}
	return b.sendMainMenu(c)
}

func (b *Bot) startRegistration(c tele.Context) error {
	b.states.set(c.Sender().ID, stateAwaitingEmail)
	return c.Send(`✅ Доступ подтверждён!

Чтобы построить вашу реферальную ссылку, нужны контакты, которые вы указывали при регистрации.

📧 Введите ваш email:`, tele.ModeHTML)
}

func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	text := strings.TrimSpace(c.Text())

	switch b.states.get(sender.ID) {
	case stateAwaitingEmail:
		return b.handleEmailInput(c, text)
	case stateAwaitingPhone:
		return b.handlePhoneInput(c, text)
	case stateAwaitingBroadcastText:
		return b.handleBroadcastInput(c, text)
	case stateAwaitingGradeThreshold:
		return b.handleGradeThresholdInput(c, text)
	case stateAwaitingGradeRewards:
		return b.handleGradeRewardsInput(c, text)
	case stateAwaitingTipsText:
		return b.handleTipsInput(c, text)
	case stateAwaitingContact:
		return b.handleContactInput(c, text)
	}

	return c.Send("Используйте /start, чтобы открыть меню.")
}

// handlePhoto is only meaningful while an admin composes a broadcast.
func (b *Bot) handlePhoto(c tele.Context) error {
	if b.states.get(c.Sender().ID) != stateAwaitingBroadcastText || !b.isAdmin(c) {
		return nil
	}
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	return b.handleBroadcastPhoto(c, photo)
}

func validEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && strings.Contains(s[at:], ".")
}

func (b *Bot) handleEmailInput(c tele.Context, text string) error {
	sender := c.Sender()
	if !validEmail(text) {
		return c.Send("Это не похоже на email. Попробуйте ещё раз, например: ivan@example.com")
	}

	if err := b.userSvc.UpdateEmail(context.Background(), sender.ID, text); err != nil {
		return err
	}

	b.states.set(sender.ID, stateAwaitingPhone)

	keyboard := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	keyboard.Reply(
		keyboard.Row(keyboard.Contact("📱 Поделиться номером")),
	)
	return c.Send("📱 Теперь телефон. Введите номер или поделитесь контактом:", keyboard)
}

func validPhone(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10
}

func (b *Bot) handlePhoneInput(c tele.Context, text string) error {
	sender := c.Sender()
	if !validPhone(text) {
		return c.Send("В номере должно быть не меньше 10 цифр. Попробуйте ещё раз.")
	}

	if err := b.userSvc.UpdatePhone(context.Background(), sender.ID, text); err != nil {
		return err
	}

	b.states.clear(sender.ID)
	if err := c.Send("✅ Контакты сохранены!", &tele.ReplyMarkup{RemoveKeyboard: true}); err != nil {
		return err
	}
	return b.sendMainMenu(c)
}

func (b *Bot) handleContact(c tele.Context) error {
	sender := c.Sender()
	if b.states.get(sender.ID) != stateAwaitingPhone {
		return nil
	}
	contact := c.Message().Contact
	if contact == nil || contact.PhoneNumber == "" {
		return c.Send("Не удалось прочитать контакт, введите номер вручную.")
	}
	return b.handlePhoneInput(c, contact.PhoneNumber)
}

func (b *Bot) handleHelp(c tele.Context) error {
	text := `📖 <b>Как это работает</b>

1. Вы получаете личную ссылку на регистрацию.
2. Друг регистрируется по ней и проходит очный этап.
3. После подтверждения реферал засчитывается вам.
4. За количество приглашённых открываются грейды с наградами.

<b>Команды:</b>
/start — главное меню
/help — эта справка`

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) sendMainMenu(c tele.Context) error {
	keyboard := &tele.ReplyMarkup{}
	rows := []tele.Row{
		keyboard.Row(
			keyboard.Data("📊 Моя статистика", "my_stats"),
			keyboard.Data("🔗 Моя ссылка", "my_link"),
		),
		keyboard.Row(
			keyboard.Data("🏆 Топ рефереров", "leaderboard"),
			keyboard.Data("🎁 Грейды", "grades_info"),
		),
		keyboard.Row(
			keyboard.Data("💡 Советы", "tips"),
			keyboard.Data("✏️ Изменить контакты", "edit_contacts"),
		),
	}
	if b.cfg.Telegram.IsAdmin(c.Sender().ID) {
		rows = append(rows, keyboard.Row(keyboard.Data("⚙️ Админ-панель", "admin_panel")))
	}
	keyboard.Inline(rows...)

	text := `👋 <b>Реферальный кабинет</b>

Приглашайте друзей по личной ссылке и получайте награды за каждый грейд.`

	return c.Send(text, keyboard, tele.ModeHTML)
}
