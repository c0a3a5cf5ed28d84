package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/refbot/backend/internal/config"
	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/handler"
	"github.com/refbot/backend/internal/logger"
	"github.com/refbot/backend/internal/middleware"
	"github.com/refbot/backend/internal/repository"
	"github.com/refbot/backend/internal/service"
	"github.com/refbot/backend/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.Init(cfg.Server.Environment)
	defer logger.Sync()

	repo, err := repository.New(cfg.Database.DSN())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := repo.Ping(pingCtx); err != nil {
		log.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	cipher := crypto.New(cfg.Referral.CryptoKey)
	if !cipher.Enabled() {
		log.Warn("PII encryption disabled, values are stored as plaintext")
	}

	// Services
	userService := service.NewUserService(repo, cipher)
	vault := service.NewTokenVault(repo, cipher)
	referralSvc := service.NewReferralService(repo, vault, cfg.Referral.ReferralLink)
	gradeSvc := service.NewGradeService(repo)
	exportSvc := service.NewExportService(repo, vault, cipher)
	settingsSvc := service.NewSettingsService(repo)

	// Telegram bot
	var bot *telegram.Bot
	var attributionSvc *service.AttributionService
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg, userService, referralSvc, gradeSvc, exportSvc, settingsSvc)
		if err != nil {
			log.Fatal("failed to create telegram bot", zap.Error(err))
		}
		attributionSvc = service.NewAttributionService(repo, vault, cipher, bot)
		broadcastSvc := service.NewBroadcastService(repo, bot)
		bot.SetAttributionService(attributionSvc)
		bot.SetBroadcastService(broadcastSvc)
		log.Info("telegram bot initialized", zap.String("username", bot.GetBotUsername()))
	} else {
		attributionSvc = service.NewAttributionService(repo, vault, cipher, service.NopNotifier{})
		log.Warn("TELEGRAM_BOT_TOKEN is empty, running API only")
	}

	h := handler.New(cfg, userService, referralSvc, gradeSvc, attributionSvc, exportSvc)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Telegram-Init-Data",
	}))

	app.Get("/health", h.Health)

	// Public API
	app.Get("/api/grades", h.GetGrades)
	app.Get("/api/leaderboard", h.GetLeaderboard)

	// API routes with Telegram authentication
	api := app.Group("/api", middleware.TelegramAuth(cfg))
	api.Get("/user/me", h.GetMe)
	api.Post("/user/contacts", h.UpdateContacts)
	api.Get("/referral/stats", h.GetReferralStats)
	api.Get("/referral/link", h.GetReferralLink)
	api.Get("/referral/users", h.GetMyReferrals)
	api.Get("/grades/my", h.GetMyGrades)

	// Admin routes
	admin := app.Group("/api/admin", middleware.TelegramAuth(cfg), middleware.AdminAuth(cfg, userService))
	admin.Get("/stats", h.AdminStats)
	admin.Post("/grades", h.CreateGrade)
	admin.Put("/grades/:grade_id", h.UpdateGrade)
	admin.Delete("/grades/:grade_id", h.DeleteGrade)
	admin.Get("/grades/:grade_id/reached", h.GradeReached)
	admin.Post("/grades/:grade_id/claims", h.CreateClaim)
	admin.Post("/import", h.ImportCSV)
	admin.Get("/export/users", h.ExportUsers)
	admin.Get("/export/tokens", h.ExportTokenKey)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if bot != nil {
		go bot.StartPolling(ctx)
		bot.NotifyAdmins("🟢 Бот запущен")
	}

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.Server.Port))

	<-ctx.Done()
	log.Info("shutting down")

	if bot != nil {
		bot.NotifyAdmins("🔴 Бот останавливается")
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
