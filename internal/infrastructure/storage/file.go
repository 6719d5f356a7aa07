package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

const (
	UsersFile   = "users.json"
	HistoryFile = "price_history.json"
)

// FileStore - хранение состояния в двух JSON-документах на диске.
// Отсутствующий или пустой файл читается как "данных еще нет".
type FileStore struct {
	usersPath   string
	historyPath string
	mu          sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		usersPath:   filepath.Join(dir, UsersFile),
		historyPath: filepath.Join(dir, HistoryFile),
	}
}

// --- On-disk схема ---

type subscriberDoc struct {
	ChatID    int64     `json:"chat_id"`
	FirstName string    `json:"first_name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type snapshotDoc struct {
	Timestamp time.Time                  `json:"timestamp"`
	Prices    map[string]decimal.Decimal `json:"prices"`
}

func (f *FileStore) LoadSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	var docs []subscriberDoc
	ok, err := f.readJSON(f.usersPath, &docs)
	if err != nil || !ok {
		return nil, err
	}

	subs := make([]domain.Subscriber, 0, len(docs))
	for _, d := range docs {
		subs = append(subs, domain.Subscriber{
			ChatID:    d.ChatID,
			FirstName: d.FirstName,
			Username:  d.Username,
			CreatedAt: d.CreatedAt,
		})
	}
	return subs, nil
}

func (f *FileStore) SaveSubscribers(ctx context.Context, subs []domain.Subscriber) error {
	docs := make([]subscriberDoc, 0, len(subs))
	for _, s := range subs {
		docs = append(docs, subscriberDoc{
			ChatID:    s.ChatID,
			FirstName: s.FirstName,
			Username:  s.Username,
			CreatedAt: s.CreatedAt,
		})
	}
	return f.writeJSON(f.usersPath, docs)
}

func (f *FileStore) LoadHistory(ctx context.Context) ([]domain.PriceSnapshot, error) {
	var docs []snapshotDoc
	ok, err := f.readJSON(f.historyPath, &docs)
	if err != nil || !ok {
		return nil, err
	}

	snaps := make([]domain.PriceSnapshot, 0, len(docs))
	for _, d := range docs {
		snaps = append(snaps, domain.PriceSnapshot{
			Timestamp: d.Timestamp,
			Prices:    d.Prices,
		})
	}
	return snaps, nil
}

func (f *FileStore) SaveHistory(ctx context.Context, snaps []domain.PriceSnapshot) error {
	docs := make([]snapshotDoc, 0, len(snaps))
	for _, s := range snaps {
		docs = append(docs, snapshotDoc{
			Timestamp: s.Timestamp,
			Prices:    s.Prices,
		})
	}
	return f.writeJSON(f.historyPath, docs)
}

// --- Helpers ---

// readJSON возвращает (false, nil), когда файла нет или он пуст
func (f *FileStore) readJSON(path string, dst interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

// writeJSON пишет во временный файл и переименовывает, чтобы не оставить
// полузаписанный документ при падении посреди записи
func (f *FileStore) writeJSON(path string, src interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(src)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
