package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/refbot/backend/internal/config"
	"github.com/refbot/backend/internal/logger"
	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/service"
)

type Bot struct {
	bot         *tele.Bot
	cfg         *config.Config
	userSvc     *service.UserService
	referralSvc *service.ReferralService
	gradeSvc    *service.GradeService
	exportSvc   *service.ExportService
	settingsSvc *service.SettingsService

	// set after construction, they need the bot as their message sink
	attributionSvc *service.AttributionService
	broadcastSvc   *service.BroadcastService

	states *stateStore
}

func NewBot(
	cfg *config.Config,
	userSvc *service.UserService,
	referralSvc *service.ReferralService,
	gradeSvc *service.GradeService,
	exportSvc *service.ExportService,
	settingsSvc *service.SettingsService,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:         bot,
		cfg:         cfg,
		userSvc:     userSvc,
		referralSvc: referralSvc,
		gradeSvc:    gradeSvc,
		exportSvc:   exportSvc,
		settingsSvc: settingsSvc,
		states:      newStateStore(),
	}

	b.registerHandlers()

	return b, nil
}

func (b *Bot) SetAttributionService(svc *service.AttributionService) {
	b.attributionSvc = svc
}

func (b *Bot) SetBroadcastService(svc *service.BroadcastService) {
	b.broadcastSvc = svc
}

func (b *Bot) registerHandlers() {
	b.bot.Use(b.subscriptionGate)

	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/help", b.handleHelp)
	b.bot.Handle("/admin", b.handleAdminPanel)

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnContact, b.handleContact)
	b.bot.Handle(tele.OnPhoto, b.handlePhoto)
	b.bot.Handle(tele.OnDocument, b.handleDocument)
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// subscriptionGate blocks everything except /start and the subscription
// check until the user is a member of the closed channel. Admins bypass.
func (b *Bot) subscriptionGate(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return next(c)
		}
		if b.cfg.Telegram.IsAdmin(sender.ID) {
			return next(c)
		}
		if c.Message() != nil && strings.HasPrefix(c.Message().Text, "/start") {
			return next(c)
		}
		if c.Callback() != nil && strings.TrimPrefix(c.Callback().Data, "\f") == "check_subscription" {
			return next(c)
		}

		user, err := b.userSvc.GetUser(context.Background(), sender.ID)
		if err == nil && user.IsSubscribed {
			return next(c)
		}

		return b.sendGatePrompt(c)
	}
}

func (b *Bot) sendGatePrompt(c tele.Context) error {
	text := `👋 Доступ к боту открывается после прохождения очного этапа.

Если вы уже в закрытом канале — нажмите кнопку ниже. Если ещё нет, подайте заявку на участие.`

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.URL("📝 Подать заявку", b.cfg.Referral.ApplicationLink()),
		),
		keyboard.Row(
			keyboard.Data("✅ Я в канале, проверить", "check_subscription"),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

// isChannelMember checks membership in the closed channel. Left and kicked
// do not count.
func (b *Bot) isChannelMember(userID int64) (bool, error) {
	if b.cfg.Telegram.ChannelID == 0 {
		return true, nil
	}
	member, err := b.bot.ChatMemberOf(&tele.Chat{ID: b.cfg.Telegram.ChannelID}, &tele.User{ID: userID})
	if err != nil {
		return false, fmt.Errorf("failed to check channel membership: %w", err)
	}
	return member.Role != tele.Left && member.Role != tele.Kicked, nil
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

func (b *Bot) GetBotUsername() string {
	return b.bot.Me.Username
}

// SendText implements the broadcast sender.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	_, err := b.bot.Send(&tele.User{ID: chatID}, text, tele.ModeHTML)
	return err
}

// SendPhoto implements the broadcast sender for photo messages.
func (b *Bot) SendPhoto(_ context.Context, chatID int64, photoID, caption string) error {
	photo := &tele.Photo{File: tele.File{FileID: photoID}, Caption: caption}
	_, err := b.bot.Send(&tele.User{ID: chatID}, photo, tele.ModeHTML)
	return err
}

// NotifyGradeAchieved congratulates a referrer on reaching a grade.
func (b *Bot) NotifyGradeAchieved(_ context.Context, userID int64, grade model.Grade) error {
	rewards := grade.RewardList()
	var list strings.Builder
	for _, r := range rewards {
		list.WriteString("• " + r + "\n")
	}

	text := fmt.Sprintf(`🎉 <b>Поздравляем, новый грейд!</b>

Вы пригласили %d и открыли награды:

%s
Награды выдаёт куратор, он свяжется с вами.`, grade.ReferralThreshold, list.String())

	_, err := b.bot.Send(&tele.User{ID: userID}, text, tele.ModeHTML)
	return err
}

// NotifyReferralConfirmed reports a confirmed referral without a crossing.
func (b *Bot) NotifyReferralConfirmed(ctx context.Context, userID int64, count int) error {
	grades, err := b.gradeSvc.ListGrades(ctx)
	if err != nil {
		grades = nil
	}

	text := fmt.Sprintf(`✅ <b>Ваш реферал подтверждён!</b>

Всего приглашено: %d`, count)

	if next := service.Next(grades, count); next != nil {
		text += fmt.Sprintf("\nДо следующего грейда осталось: %d", next.ReferralThreshold-count)
	}

	_, err = b.bot.Send(&tele.User{ID: userID}, text, tele.ModeHTML)
	return err
}

// NotifyAdmins sends a service message to every configured admin.
func (b *Bot) NotifyAdmins(text string) {
	for _, id := range b.cfg.Telegram.AdminIDs {
		if _, err := b.bot.Send(&tele.User{ID: id}, text, tele.ModeHTML); err != nil {
			logger.L().Debug("admin notify failed", zap.Int64("admin_id", id), zap.Error(err))
		}
	}
}

func (b *Bot) handleCallback(c tele.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")
	defer c.Respond()

	switch data {
	case "check_subscription":
		return b.handleCheckSubscription(c)
	case "menu":
		return b.sendMainMenu(c)
	case "my_stats":
		return b.handleMyStats(c)
	case "my_link":
		return b.handleMyLink(c)
	case "leaderboard":
		return b.handleLeaderboard(c)
	case "grades_info":
		return b.handleGradesInfo(c)
	case "tips":
		return b.handleTips(c)
	case "edit_contacts":
		return b.handleEditContacts(c)
	case "admin_panel":
		return b.handleAdminPanel(c)
	case "admin_stats":
		return b.handleAdminStats(c)
	case "admin_grades":
		return b.handleAdminGrades(c)
	case "admin_grade_add":
		return b.handleGradeAdd(c)
	case "admin_broadcast":
		return b.handleBroadcastPrompt(c)
	case "admin_import":
		return b.handleImportPrompt(c)
	case "admin_export_users":
		return b.handleExportUsers(c)
	case "admin_export_tokens":
		return b.handleExportTokens(c)
	case "admin_tips_edit":
		return b.handleTipsEdit(c)
	case "admin_contacts":
		return b.handleAdminContacts(c)
	case "admin_contact_add":
		return b.handleContactAdd(c)
	case "bc_send":
		return b.handleBroadcastSend(c)
	case "bc_cancel":
		return b.handleBroadcastCancel(c)
	}

	switch {
	case strings.HasPrefix(data, "grade_who_"):
		return b.handleGradeWho(c, strings.TrimPrefix(data, "grade_who_"))
	case strings.HasPrefix(data, "grade_del_"):
		return b.handleGradeDelete(c, strings.TrimPrefix(data, "grade_del_"))
	case strings.HasPrefix(data, "claim_"):
		return b.handleClaim(c, strings.TrimPrefix(data, "claim_"))
	case strings.HasPrefix(data, "contact_del_"):
		return b.handleContactDelete(c, strings.TrimPrefix(data, "contact_del_"))
	}

	logger.L().Debug("unknown callback", zap.String("data", data), zap.Int64("user_id", c.Sender().ID))
	return nil
}
