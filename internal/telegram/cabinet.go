package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/refbot/backend/internal/service"
)

func (b *Bot) handleMyStats(c tele.Context) error {
	sender := c.Sender()

	stats, err := b.referralSvc.Stats(context.Background(), sender.ID)
	if err != nil {
		return err
	}
	grades, err := b.gradeSvc.ListGrades(context.Background())
	if err != nil {
		return err
	}

	achieved := service.Achieved(grades, stats.Count)
	var gradeLine string
	if len(achieved) > 0 {
		last := achieved[len(achieved)-1]
		gradeLine = fmt.Sprintf("🎖 Текущий грейд: %d приглашений", last.ReferralThreshold)
	} else {
		gradeLine = "🎖 Грейд пока не открыт"
	}

	text := fmt.Sprintf(`📊 <b>Ваша статистика</b>

👥 Подтверждённых рефералов: %d
🏅 Место в рейтинге: %d
%s`, stats.Count, stats.Rank, gradeLine)

	if next := service.Next(grades, stats.Count); next != nil {
		text += fmt.Sprintf("\n⏳ До следующего грейда: ещё %d", next.ReferralThreshold-stats.Count)
	}

	return c.Send(text, backToMenu(), tele.ModeHTML)
}

func (b *Bot) handleMyLink(c tele.Context) error {
	sender := c.Sender()

	user, err := b.userSvc.GetUser(context.Background(), sender.ID)
	if err != nil {
		return err
	}

	link, err := b.referralSvc.Link(context.Background(), user)
	if errors.Is(err, service.ErrProfileIncomplete) {
		return b.startRegistration(c)
	}
	if err != nil {
		return err
	}

	text := fmt.Sprintf(`🔗 <b>Ваша реферальная ссылка</b>

<code>%s</code>

Отправьте её другу: когда он зарегистрируется и пройдёт очный этап, реферал засчитается вам.`, link)

	return c.Send(text, backToMenu(), tele.ModeHTML)
}

func (b *Bot) handleLeaderboard(c tele.Context) error {
	top, err := b.referralSvc.TopReferrers(context.Background(), 10)
	if err != nil {
		return err
	}

	if len(top) == 0 {
		return c.Send("Рейтинг пока пуст — станьте первым!", backToMenu())
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("🏆 <b>Топ рефереров</b>\n\n")
	for i, entry := range top {
		prefix := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			prefix = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %d\n", prefix, b.userSvc.DecryptedName(&entry.User), entry.Count))
	}

	return c.Send(sb.String(), backToMenu(), tele.ModeHTML)
}

func (b *Bot) handleGradesInfo(c tele.Context) error {
	grades, err := b.gradeSvc.ListGrades(context.Background())
	if err != nil {
		return err
	}

	if len(grades) == 0 {
		return c.Send("Грейды ещё не настроены.", backToMenu())
	}

	var sb strings.Builder
	sb.WriteString("🎁 <b>Грейды и награды</b>\n\n")
	for _, g := range grades {
		sb.WriteString(fmt.Sprintf("<b>%d приглашений:</b>\n", g.ReferralThreshold))
		for _, r := range g.RewardList() {
			sb.WriteString("• " + r + "\n")
		}
		sb.WriteString("\n")
	}

	return c.Send(sb.String(), backToMenu(), tele.ModeHTML)
}

func (b *Bot) handleTips(c tele.Context) error {
	text, err := b.settingsSvc.TipsText(context.Background())
	if err != nil {
		return err
	}

	contacts, err := b.settingsSvc.ListContacts(context.Background())
	if err == nil && len(contacts) > 0 {
		text += "\n\n📞 <b>Кураторы:</b>\n"
		for _, contact := range contacts {
			line := "@" + strings.TrimPrefix(contact.TgUsername, "@")
			if contact.Note != nil && *contact.Note != "" {
				line += " — " + *contact.Note
			}
			text += line + "\n"
		}
	}

	return c.Send(text, backToMenu(), tele.ModeHTML)
}

func (b *Bot) handleEditContacts(c tele.Context) error {
	return b.startRegistration(c)
}

func backToMenu() *tele.ReplyMarkup {
	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(keyboard.Data("⬅️ В меню", "menu")),
	)
	return keyboard
}
