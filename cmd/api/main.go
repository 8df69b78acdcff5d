package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ticketgate/gateway/internal/app"
	"github.com/ticketgate/gateway/internal/auth"
	"github.com/ticketgate/gateway/internal/infra"
	"github.com/ticketgate/gateway/internal/notify"
	"github.com/ticketgate/gateway/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if cfg.RunMigrations {
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Key-value store for webhook dedupe and bot conversations
	var store infra.KVStore
	if cfg.RedisURL != "" {
		redisStore, err := infra.NewRedisStore(ctx, cfg.RedisURL, "ticketgate:")
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("connected to redis")
	} else {
		memStore := infra.NewInMemoryStore()
		memStore.StartSweeper(ctx, 10*time.Minute)
		store = memStore
		logger.Warn("REDIS_URL not set, keeping dedupe and bot state in memory")
	}

	adminExpiry, err := time.ParseDuration(cfg.JWTAdminExpiry)
	if err != nil {
		return fmt.Errorf("parse admin JWT expiry: %w", err)
	}
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, adminExpiry)

	// Telegram
	var (
		bot      *tgbotapi.BotAPI
		notifier notify.Dispatcher = notify.NewNoopDispatcher(logger)
	)
	if cfg.TelegramBotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("connect telegram: %w", err)
		}
		logger.Info("telegram bot authorized", "username", bot.Self.UserName)
		if cfg.TelegramOrganizerChat != 0 {
			notifier = notify.NewTelegramDispatcher(bot, cfg.TelegramOrganizerChat, logger)
		} else {
			logger.Warn("TELEGRAM_ORGANIZER_CHAT_ID not set, organizer notifications disabled")
		}
	}

	db := repository.NewDatabase(pool)
	svc := app.NewServices(app.ServiceDeps{
		Config:   cfg,
		DB:       db,
		Store:    store,
		Notifier: notifier,
		JWTMgr:   jwtMgr,
		Logger:   logger,
	})

	if err := svc.Settings.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	// Bot long polling
	if bot != nil && cfg.TelegramPollingEnabled {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)
		access := notify.Access{OrganizerChat: cfg.TelegramOrganizerChat, StaffUserIDs: cfg.TelegramStaffUserIDs}
		if access.OrganizerChat == 0 && len(access.StaffUserIDs) == 0 {
			logger.Warn("telegram bot has no organizer chat or staff users, staff commands will be refused")
		}
		staffBot := notify.NewBot(bot, svc.Payments, notify.NewConversationStore(store), access, logger)
		go staffBot.Run(ctx, updates)
		defer bot.StopReceivingUpdates()
	}

	// Outbox relay
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if producer.Enabled() {
		source := repository.NewOutboxSource(repository.NewOutboxRepository(), db)
		infra.NewOutboxPoller(source, producer, logger).Start(ctx)
	}

	limiter := app.NewRegistrationLimiter(cfg)
	limiter.StartSweeper(ctx)

	r := app.NewRouter(app.RouterDeps{
		Health:      pool,
		Services:    svc,
		JWTMgr:      jwtMgr,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger,
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "webhook_url", cfg.WebhookURL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
