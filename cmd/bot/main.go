package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/adherence"
	"github.com/rxline/rxline/internal/ai"
	"github.com/rxline/rxline/internal/bot"
	"github.com/rxline/rxline/internal/bot/handlers"
	"github.com/rxline/rxline/internal/config"
	"github.com/rxline/rxline/internal/database"
	"github.com/rxline/rxline/internal/logger"
	"github.com/rxline/rxline/internal/notify"
	"github.com/rxline/rxline/internal/repository"
	"github.com/rxline/rxline/internal/schedule"
	"github.com/rxline/rxline/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DatabaseURI == "" {
		log.Fatal("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	zlog.Info("connected to database")

	if err := db.Migrate(ctx); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}
	zlog.Info("database migrations completed")

	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		zlog.Info("AI client initialized", zap.String("model", cfg.AIModel))
	} else {
		zlog.Info("AI client not configured, natural language features disabled")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		zlog.Fatal("failed to create Telegram API", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	medicationRepo := repository.NewMedicationRepository(db)
	adherenceRepo := repository.NewAdherenceRepository(db)
	pendingRepo := repository.NewPendingResponseRepository(db)
	handleRepo := repository.NewHandleRepository(db)
	deviceRepo := repository.NewDeviceNotificationRepository(db)

	platform := notify.NewTelegramPlatform(deviceRepo, zlog)
	registry := notify.NewRegistry(handleRepo, platform, zlog)
	synchronizer := schedule.NewSynchronizer(registry, zlog)
	messenger := notify.NewTelegramMessenger(api, zlog)
	contacts := notify.NewTelegramContactNotifier(api, zlog)

	ledger := adherence.NewLedger(adherenceRepo, zlog)
	detector := adherence.NewDetector(pendingRepo, ledger, cfg.MissedGraceWindow, zlog)

	sched := scheduler.New(
		platform,
		messenger,
		contacts,
		medicationRepo,
		pendingRepo,
		userRepo,
		ledger,
		detector,
		cfg.CheckInterval,
		cfg.EscalationThreshold,
		zlog,
	)
	go sched.Start(ctx)

	repos := &handlers.Repositories{
		User:       userRepo,
		Medication: medicationRepo,
		Pending:    pendingRepo,
	}
	h := handlers.New(api, repos, aiClient, synchronizer, ledger, contacts, sched, cfg, zlog)
	b := bot.New(api, h, zlog)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		zlog.Info("shutting down")
		cancel()
	}()

	zlog.Info("starting bot")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		zlog.Fatal("bot error", zap.Error(err))
	}
}
