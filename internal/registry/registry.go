package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

// Registry - реестр получателей рассылки. Единственный владелец набора
// подписчиков: все мутации идут через его операции, никаких частичных
// состояний снаружи не видно.
type Registry struct {
	store  domain.StateStore
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[int64]domain.Subscriber

	// saveMu упорядочивает сохранения относительно мутаций, чтобы на
	// диске не оказалась копия старее итогового состояния. I/O идет
	// без mu, читатели диск не ждут.
	saveMu sync.Mutex

	now func() time.Time
}

func New(ctx context.Context, store domain.StateStore, logger *slog.Logger) *Registry {
	r := &Registry{
		store:  store,
		logger: logger.With(slog.String("component", "registry")),
		subs:   make(map[int64]domain.Subscriber),
		now:    time.Now,
	}

	loaded, err := store.LoadSubscribers(ctx)
	if err != nil {
		r.logger.Error("failed to load subscribers", "err", err)
		return r
	}
	for _, sub := range loaded {
		r.subs[sub.ChatID] = sub
	}
	r.logger.Info("subscribers loaded", "count", len(r.subs))
	return r
}

// AddIfAbsent - идемпотентная регистрация. Повторный /start от того же
// chat_id ничего не меняет и не перезаписывает данные.
func (r *Registry) AddIfAbsent(ctx context.Context, chatID int64, firstName, username string) bool {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	if _, exists := r.subs[chatID]; exists {
		r.mu.Unlock()
		return false
	}
	r.subs[chatID] = domain.Subscriber{
		ChatID:    chatID,
		FirstName: firstName,
		Username:  username,
		CreatedAt: r.now(),
	}
	cp := r.copyLocked()
	r.mu.Unlock()

	r.persist(ctx, cp)
	return true
}

// Remove - идемпотентное удаление
func (r *Registry) Remove(ctx context.Context, chatID int64) bool {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.Lock()
	if _, exists := r.subs[chatID]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.subs, chatID)
	cp := r.copyLocked()
	r.mu.Unlock()

	r.persist(ctx, cp)
	return true
}

// All возвращает копию списка: по ней безопасно итерироваться во время
// рассылки, пока реестр параллельно чистится
func (r *Registry) All() []domain.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) copyLocked() []domain.Subscriber {
	out := make([]domain.Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

func (r *Registry) persist(ctx context.Context, subs []domain.Subscriber) {
	if err := r.store.SaveSubscribers(ctx, subs); err != nil {
		// In-memory состояние остается источником истины
		r.logger.Error("failed to persist subscribers", "err", err)
	}
}
