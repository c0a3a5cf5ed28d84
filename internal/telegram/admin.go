package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/refbot/backend/internal/logger"
	"github.com/refbot/backend/internal/service"
)

func (b *Bot) isAdmin(c tele.Context) bool {
	return c.Sender() != nil && b.cfg.Telegram.IsAdmin(c.Sender().ID)
}

func (b *Bot) handleAdminPanel(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("📈 Статистика", "admin_stats"),
			keyboard.Data("🎁 Грейды", "admin_grades"),
		),
		keyboard.Row(
			keyboard.Data("📣 Рассылка", "admin_broadcast"),
			keyboard.Data("📥 Импорт CSV", "admin_import"),
		),
		keyboard.Row(
			keyboard.Data("📤 Выгрузка участников", "admin_export_users"),
			keyboard.Data("🔑 Ключ токенов", "admin_export_tokens"),
		),
		keyboard.Row(
			keyboard.Data("💡 Текст советов", "admin_tips_edit"),
			keyboard.Data("📞 Кураторы", "admin_contacts"),
		),
		keyboard.Row(keyboard.Data("⬅️ В меню", "menu")),
	)

	return c.Send("⚙️ <b>Админ-панель</b>", keyboard, tele.ModeHTML)
}

func (b *Bot) handleAdminStats(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	ctx := context.Background()

	users, err := b.userSvc.CountActive(ctx)
	if err != nil {
		return err
	}
	referrals, err := b.referralSvc.TotalReferrals(ctx)
	if err != nil {
		return err
	}
	pending, err := b.userSvc.PendingUsers(ctx)
	if err != nil {
		return err
	}

	text := fmt.Sprintf(`📈 <b>Статистика бота</b>

👥 Активных участников: %d
🔗 Подтверждённых рефералов: %d
⏳ Ждут привязки из CRM: %d`, users, referrals, len(pending))

	return c.Send(text, backToAdmin(), tele.ModeHTML)
}

func (b *Bot) handleAdminGrades(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}

	grades, err := b.gradeSvc.ListGrades(context.Background())
	if err != nil {
		return err
	}

	keyboard := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, g := range grades {
		id := strconv.FormatInt(g.ID, 10)
		rows = append(rows, keyboard.Row(
			keyboard.Data(fmt.Sprintf("👥 Достигли %d", g.ReferralThreshold), "grade_who_"+id),
			keyboard.Data("🗑", "grade_del_"+id),
		))
	}
	rows = append(rows,
		keyboard.Row(keyboard.Data("➕ Добавить грейд", "admin_grade_add")),
		keyboard.Row(keyboard.Data("⬅️ Назад", "admin_panel")),
	)
	keyboard.Inline(rows...)

	var sb strings.Builder
	sb.WriteString("🎁 <b>Грейды</b>\n\n")
	if len(grades) == 0 {
		sb.WriteString("Пока не настроены.\n")
	}
	for _, g := range grades {
		sb.WriteString(fmt.Sprintf("<b>%d:</b> %s\n", g.ReferralThreshold, strings.Join(g.RewardList(), ", ")))
	}

	return c.Send(sb.String(), keyboard, tele.ModeHTML)
}

func (b *Bot) handleGradeAdd(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	b.states.set(c.Sender().ID, stateAwaitingGradeThreshold)
	return c.Send("Введите порог грейда (число приглашений):")
}

func (b *Bot) handleGradeThresholdInput(c tele.Context, text string) error {
	threshold, err := strconv.Atoi(text)
	if err != nil || threshold < 0 {
		return c.Send("Нужно неотрицательное число. Попробуйте ещё раз.")
	}
	b.states.setData(c.Sender().ID, "grade_threshold", text)
	b.states.set(c.Sender().ID, stateAwaitingGradeRewards)
	return c.Send("Теперь перечислите награды через запятую:")
}

func (b *Bot) handleGradeRewardsInput(c tele.Context, text string) error {
	sender := c.Sender()
	threshold, err := strconv.Atoi(b.states.getData(sender.ID, "grade_threshold"))
	if err != nil {
		b.states.clear(sender.ID)
		return c.Send("Порог потерялся, начните заново.")
	}

	var rewards []string
	for _, r := range strings.Split(text, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rewards = append(rewards, r)
		}
	}
	if len(rewards) == 0 {
		return c.Send("Список наград пуст. Перечислите награды через запятую.")
	}

	grade, err := b.gradeSvc.CreateGrade(context.Background(), threshold, rewards)
	if err != nil {
		return err
	}
	b.states.clear(sender.ID)
	return c.Send(fmt.Sprintf("✅ Грейд «%d приглашений» создан (id %d).", grade.ReferralThreshold, grade.ID), backToAdmin())
}

func (b *Bot) handleGradeDelete(c tele.Context, idStr string) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}
	if err := b.gradeSvc.DeleteGrade(context.Background(), id); err != nil {
		if errors.Is(err, service.ErrGradeNotFound) {
			return c.Send("Грейд уже удалён.")
		}
		return err
	}
	return b.handleAdminGrades(c)
}

func (b *Bot) handleGradeWho(c tele.Context, idStr string) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	gradeID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}
	ctx := context.Background()

	users, err := b.gradeSvc.UsersForGrade(ctx, gradeID)
	if err != nil {
		if errors.Is(err, service.ErrGradeNotFound) {
			return c.Send("Грейд не найден.")
		}
		return err
	}
	if len(users) == 0 {
		return c.Send("Этот грейд ещё никто не достиг.", backToAdmin())
	}

	keyboard := &tele.ReplyMarkup{}
	var rows []tele.Row
	var sb strings.Builder
	sb.WriteString("👥 <b>Достигли грейда:</b>\n\n")
	for _, entry := range users {
		claimed, err := b.gradeSvc.HasClaim(ctx, entry.ID, gradeID)
		if err != nil {
			return err
		}
		mark := ""
		if claimed {
			mark = " ✅"
		}
		sb.WriteString(fmt.Sprintf("%s — %d%s\n", b.userSvc.DecryptedName(&entry.User), entry.Count, mark))
		if !claimed {
			rows = append(rows, keyboard.Row(keyboard.Data(
				"🎁 Выдать: "+b.userSvc.DecryptedName(&entry.User),
				fmt.Sprintf("claim_%d_%d", gradeID, entry.ID),
			)))
		}
	}
	rows = append(rows, keyboard.Row(keyboard.Data("⬅️ Назад", "admin_grades")))
	keyboard.Inline(rows...)

	return c.Send(sb.String(), keyboard, tele.ModeHTML)
}

// handleClaim records a reward issuance from a claim_<gradeID>_<userID> button.
func (b *Bot) handleClaim(c tele.Context, payload string) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	parts := strings.SplitN(payload, "_", 2)
	if len(parts) != 2 {
		return nil
	}
	gradeID, err1 := strconv.ParseInt(parts[0], 10, 64)
	userID, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return nil
	}

	err := b.gradeSvc.Claim(context.Background(), userID, gradeID, c.Sender().ID)
	if errors.Is(err, service.ErrAlreadyClaimed) {
		return c.Respond(&tele.CallbackResponse{Text: "Награда уже выдана.", ShowAlert: true})
	}
	if err != nil {
		return err
	}
	return c.Send("✅ Выдача награды записана.", backToAdmin())
}

func (b *Bot) handleBroadcastPrompt(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	b.states.set(c.Sender().ID, stateAwaitingBroadcastText)
	return c.Send("Введите текст рассылки или пришлите фото с подписью (HTML разрешён):")
}

func (b *Bot) handleBroadcastInput(c tele.Context, text string) error {
	sender := c.Sender()
	b.states.setData(sender.ID, "broadcast_text", text)
	b.states.setData(sender.ID, "broadcast_photo", "")
	b.states.set(sender.ID, stateIdle)

	return c.Send("Предпросмотр:\n\n"+text, broadcastConfirm(), tele.ModeHTML)
}

func (b *Bot) handleBroadcastPhoto(c tele.Context, photo *tele.Photo) error {
	sender := c.Sender()
	b.states.setData(sender.ID, "broadcast_text", photo.Caption)
	b.states.setData(sender.ID, "broadcast_photo", photo.FileID)
	b.states.set(sender.ID, stateIdle)

	preview := &tele.Photo{File: tele.File{FileID: photo.FileID}, Caption: "Предпросмотр:\n\n" + photo.Caption}
	return c.Send(preview, broadcastConfirm(), tele.ModeHTML)
}

func broadcastConfirm() *tele.ReplyMarkup {
	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.Data("📣 Отправить", "bc_send"),
			keyboard.Data("❌ Отмена", "bc_cancel"),
		),
	)
	return keyboard
}

func (b *Bot) handleBroadcastSend(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	sender := c.Sender()
	text := b.states.getData(sender.ID, "broadcast_text")
	photoID := b.states.getData(sender.ID, "broadcast_photo")
	if text == "" && photoID == "" {
		return c.Send("Текст рассылки потерялся, начните заново.")
	}
	b.states.clear(sender.ID)

	if err := c.Send("Рассылка запущена…"); err != nil {
		return err
	}

	go func() {
		sent, failed, err := b.broadcastSvc.Broadcast(context.Background(), text, photoID)
		if err != nil {
			logger.L().Error("broadcast failed", zap.Error(err))
			_ = b.SendText(context.Background(), sender.ID, "❌ Рассылка не удалась: "+err.Error())
			return
		}
		_ = b.SendText(context.Background(), sender.ID,
			fmt.Sprintf("📣 Рассылка завершена.\nДоставлено: %d\nНе доставлено: %d", sent, failed))
	}()

	return nil
}

func (b *Bot) handleBroadcastCancel(c tele.Context) error {
	b.states.clear(c.Sender().ID)
	return c.Send("Рассылка отменена.", backToAdmin())
}

func (b *Bot) handleImportPrompt(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	b.states.set(c.Sender().ID, stateAwaitingImportCSV)
	return c.Send(`📥 Пришлите CSV-выгрузку из CRM файлом.

Обязательные колонки: email участника и utm_campaign (или email реферера). utm_content с телефоном — по желанию.`)
}

func (b *Bot) handleDocument(c tele.Context) error {
	sender := c.Sender()
	if !b.isAdmin(c) || b.states.get(sender.ID) != stateAwaitingImportCSV {
		return nil
	}
	b.states.clear(sender.ID)

	doc := c.Message().Document
	if doc == nil {
		return c.Send("Не удалось прочитать файл.")
	}

	rc, err := b.bot.File(&doc.File)
	if err != nil {
		return fmt.Errorf("failed to download import file: %w", err)
	}
	defer rc.Close()

	rows, err := service.ParseImportCSV(rc)
	if err != nil {
		if errors.Is(err, service.ErrMissingColumns) {
			return c.Send("❌ В файле нет обязательных колонок, импорт не выполнен.\n" + err.Error())
		}
		return c.Send("❌ Не удалось разобрать CSV: " + err.Error())
	}

	start := time.Now()
	summary := b.attributionSvc.Import(context.Background(), rows)

	text := fmt.Sprintf(`📥 <b>Импорт завершён</b> (%.1f c)

Всего строк: %d
✅ Привязано: %d
↩️ Уже привязаны: %d
⏳ Отложено (не прошли очный этап): %d
❓ Участник не найден: %d
❓ Реферер не найден: %d`,
		time.Since(start).Seconds(),
		summary.Total, summary.Linked, summary.AlreadyLinked,
		summary.Deferred, summary.StudentNotFound, summary.ReferrerNotFound)

	if len(summary.Errors) > 0 {
		text += fmt.Sprintf("\n\n⚠️ Ошибок: %d", len(summary.Errors))
		shown := summary.Errors
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, e := range shown {
			text += "\n• " + e
		}
	}

	return c.Send(text, backToAdmin(), tele.ModeHTML)
}

func (b *Bot) handleExportUsers(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	data, err := b.exportSvc.ExportUsers(context.Background())
	if err != nil {
		return err
	}
	return c.Send(&tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: "users_" + time.Now().Format("2006-01-02") + ".csv",
		MIME:     "text/csv",
	})
}

func (b *Bot) handleExportTokens(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	data, err := b.exportSvc.ExportTokenKey(context.Background())
	if err != nil {
		return err
	}
	return c.Send(&tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: "token_key_" + time.Now().Format("2006-01-02") + ".csv",
		MIME:     "text/csv",
	})
}

func (b *Bot) handleTipsEdit(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	b.states.set(c.Sender().ID, stateAwaitingTipsText)
	return c.Send("Введите новый текст советов (HTML разрешён):")
}

func (b *Bot) handleTipsInput(c tele.Context, text string) error {
	if err := b.settingsSvc.SetTipsText(context.Background(), text); err != nil {
		return err
	}
	b.states.clear(c.Sender().ID)
	return c.Send("✅ Текст советов обновлён.", backToAdmin())
}

func (b *Bot) handleAdminContacts(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	contacts, err := b.settingsSvc.ListContacts(context.Background())
	if err != nil {
		return err
	}

	keyboard := &tele.ReplyMarkup{}
	var rows []tele.Row
	var sb strings.Builder
	sb.WriteString("📞 <b>Кураторы</b>\n\n")
	if len(contacts) == 0 {
		sb.WriteString("Список пуст.\n")
	}
	for _, contact := range contacts {
		line := "@" + strings.TrimPrefix(contact.TgUsername, "@")
		if contact.Note != nil && *contact.Note != "" {
			line += " — " + *contact.Note
		}
		sb.WriteString(line + "\n")
		rows = append(rows, keyboard.Row(keyboard.Data(
			"🗑 "+contact.TgUsername,
			"contact_del_"+strconv.FormatInt(contact.ID, 10),
		)))
	}
	rows = append(rows,
		keyboard.Row(keyboard.Data("➕ Добавить", "admin_contact_add")),
		keyboard.Row(keyboard.Data("⬅️ Назад", "admin_panel")),
	)
	keyboard.Inline(rows...)

	return c.Send(sb.String(), keyboard, tele.ModeHTML)
}

func (b *Bot) handleContactAdd(c tele.Context) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	b.states.set(c.Sender().ID, stateAwaitingContact)
	return c.Send("Введите username куратора и заметку через запятую, например: @curator, вопросы по наградам")
}

func (b *Bot) handleContactInput(c tele.Context, text string) error {
	parts := strings.SplitN(text, ",", 2)
	username := strings.TrimSpace(parts[0])
	if username == "" {
		return c.Send("Нужен username. Попробуйте ещё раз.")
	}
	note := ""
	if len(parts) == 2 {
		note = strings.TrimSpace(parts[1])
	}

	if _, err := b.settingsSvc.AddContact(context.Background(), username, note); err != nil {
		return err
	}
	b.states.clear(c.Sender().ID)
	return b.handleAdminContacts(c)
}

func (b *Bot) handleContactDelete(c tele.Context, idStr string) error {
	if !b.isAdmin(c) {
		return c.Send("Недостаточно прав.")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}
	if err := b.settingsSvc.DeleteContact(context.Background(), id); err != nil {
		return err
	}
	return b.handleAdminContacts(c)
}

func backToAdmin() *tele.ReplyMarkup {
	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(keyboard.Data("⬅️ В админ-панель", "admin_panel")),
	)
	return keyboard
}
