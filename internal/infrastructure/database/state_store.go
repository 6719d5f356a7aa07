package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

// StateStore - Postgres-вариант хранилища состояния. Включается, когда
// задан DATABASE_URL; иначе бот живет на JSON-файлах.
type StateStore struct {
	db     *DB
	logger *slog.Logger
}

func NewStateStore(db *DB, logger *slog.Logger) *StateStore {
	return &StateStore{db: db, logger: logger}
}

// EnsureSchema создает таблицы, если их еще нет
func (s *StateStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id    BIGINT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			username   TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS price_snapshots (
			ts     TIMESTAMPTZ PRIMARY KEY,
			prices JSONB NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (s *StateStore) LoadSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	query := `
		SELECT chat_id, first_name, username, created_at
		FROM subscribers
		ORDER BY chat_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(&sub.ChatID, &sub.FirstName, &sub.Username, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("db scan error: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SaveSubscribers перезаписывает таблицу целиком: реестр в памяти -
// источник истины, частичных апдейтов не бывает.
func (s *StateStore) SaveSubscribers(ctx context.Context, subs []domain.Subscriber) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscribers`); err != nil {
		return fmt.Errorf("failed to clear subscribers: %w", err)
	}

	query := `
		INSERT INTO subscribers (chat_id, first_name, username, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, sub := range subs {
		createdAt := sub.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query, sub.ChatID, sub.FirstName, sub.Username, createdAt); err != nil {
			return fmt.Errorf("failed to save subscriber %d: %w", sub.ChatID, err)
		}
	}

	return tx.Commit()
}

func (s *StateStore) LoadHistory(ctx context.Context) ([]domain.PriceSnapshot, error) {
	query := `
		SELECT ts, prices
		FROM price_snapshots
		ORDER BY ts
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}
	defer rows.Close()

	var snaps []domain.PriceSnapshot
	for rows.Next() {
		var (
			snap domain.PriceSnapshot
			raw  []byte
		)
		if err := rows.Scan(&snap.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("db scan error: %w", err)
		}

		prices := make(map[string]decimal.Decimal)
		if err := json.Unmarshal(raw, &prices); err != nil {
			return nil, fmt.Errorf("failed to parse prices for %s: %w", snap.Timestamp, err)
		}
		snap.Prices = prices
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *StateStore) SaveHistory(ctx context.Context, snaps []domain.PriceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_snapshots`); err != nil {
		return fmt.Errorf("failed to clear price history: %w", err)
	}

	query := `
		INSERT INTO price_snapshots (ts, prices)
		VALUES ($1, $2)
	`
	for _, snap := range snaps {
		raw, err := json.Marshal(snap.Prices)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, snap.Timestamp, raw); err != nil {
			return fmt.Errorf("failed to save snapshot %s: %w", snap.Timestamp, err)
		}
	}

	return tx.Commit()
}
