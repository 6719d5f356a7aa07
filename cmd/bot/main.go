package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/joho/godotenv/autoload"

	"github.com/romanzzaa/crypto-digest-bot/internal/bot"
	"github.com/romanzzaa/crypto-digest-bot/internal/config"
	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
	"github.com/romanzzaa/crypto-digest-bot/internal/history"
	"github.com/romanzzaa/crypto-digest-bot/internal/infrastructure/cmc"
	"github.com/romanzzaa/crypto-digest-bot/internal/infrastructure/database"
	"github.com/romanzzaa/crypto-digest-bot/internal/infrastructure/storage"
	"github.com/romanzzaa/crypto-digest-bot/internal/infrastructure/telegram"
	"github.com/romanzzaa/crypto-digest-bot/internal/registry"
	"github.com/romanzzaa/crypto-digest-bot/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store domain.StateStore
	if cfg.PostgresDSN != "" {
		db, err := database.NewConnection(cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer db.Close()

		pgStore := database.NewStateStore(db, logger)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		store = pgStore
	} else {
		store = storage.NewFileStore(cfg.DataDir)
	}

	hist := history.New(ctx, store, cfg.HistoryWindow, cfg.HistoryCap, logger)
	reg := registry.New(ctx, store, logger)

	quotes := cmc.NewClient(cfg.CMCAPIKey, cfg.Symbols, 10*time.Second)

	tgBot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Error("failed to init telegram bot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tgBot.Debug = false
	logger.Info("Telegram bot authorized", slog.String("username", tgBot.Self.UserName))

	messenger := telegram.NewMessenger(tgBot)
	sched := scheduler.New(quotes, hist, reg, messenger, cfg.Symbols,
		cfg.RefreshInterval, cfg.BroadcastTimes, logger)
	botHandler := bot.NewHandler(tgBot, hist, reg, sched, cfg.Symbols,
		cfg.AdminID, cfg.WebhookURL, cfg.ListenAddr, logger)

	logger.Info("Starting bot...",
		slog.Int("symbols", len(cfg.Symbols)),
		slog.String("refresh_every", cfg.RefreshInterval.String()),
		slog.Bool("webhook", cfg.WebhookURL != ""))

	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler failed", slog.String("error", err.Error()))
			cancel()
		}
	}()
	go func() {
		if err := botHandler.Start(ctx); err != nil {
			logger.Error("bot handler failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Bot stopped gracefully")
}
