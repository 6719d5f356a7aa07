package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"

	"github.com/romanzzaa/crypto-digest-bot/internal/config"
	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
	"github.com/romanzzaa/crypto-digest-bot/internal/infrastructure/database"
	"github.com/romanzzaa/crypto-digest-bot/internal/infrastructure/storage"
)

// Сидер наполняет хранилище тестовыми подписчиками и историей цен,
// чтобы локально проверять рассылку и /history без живого трафика
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	var store domain.StateStore
	if cfg.PostgresDSN != "" {
		db, err := database.NewConnection(cfg.PostgresDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		pgStore := database.NewStateStore(db, logger)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		store = pgStore
	} else {
		store = storage.NewFileStore(cfg.DataDir)
	}

	subs := []domain.Subscriber{
		{ChatID: 111, FirstName: "Вася", Username: "vasya_test", CreatedAt: time.Now()},
		{ChatID: 222, FirstName: "Петя", Username: "petya_test", CreatedAt: time.Now()},
	}
	if cfg.AdminID != 0 {
		subs = append(subs, domain.Subscriber{
			ChatID: cfg.AdminID, FirstName: "Admin", Username: "admin", CreatedAt: time.Now(),
		})
	}
	if err := store.SaveSubscribers(ctx, subs); err != nil {
		log.Fatal(err)
	}

	// История за последние сутки с часовым шагом
	now := time.Now().Truncate(time.Hour)
	var snaps []domain.PriceSnapshot
	for i := 23; i >= 0; i-- {
		drift := decimal.NewFromInt(int64(i * 37))
		snaps = append(snaps, domain.PriceSnapshot{
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Prices: map[string]decimal.Decimal{
				"BTC":  decimal.NewFromInt(65000).Add(drift),
				"ETH":  decimal.NewFromInt(3200).Add(drift.Div(decimal.NewFromInt(10))),
				"PEPE": decimal.RequireFromString("0.000012"),
			},
		})
	}
	if err := store.SaveHistory(ctx, snaps); err != nil {
		log.Fatal(err)
	}

	logger.Info("seed complete",
		slog.Int("subscribers", len(subs)),
		slog.Int("snapshots", len(snaps)))
}
