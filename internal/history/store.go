package history

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

// Store - ограниченная по времени и размеру история срезов цен.
// Единственный владелец этих данных в процессе: планировщик пишет,
// обработчики команд читают, все через замок самого стора.
// In-memory состояние первично; персистентность - best-effort.
type Store struct {
	store  domain.StateStore
	logger *slog.Logger

	window time.Duration // Окно хранения W
	cap    int           // Вторичный лимит по количеству C

	mu    sync.RWMutex
	snaps []domain.PriceSnapshot // Отсортированы по Timestamp по возрастанию

	// saveMu упорядочивает сохранения относительно мутаций: без него две
	// параллельные записи могут донести на диск сначала новую копию,
	// потом старую. Сам I/O идет без mu, читатели диск не ждут.
	saveMu sync.Mutex

	now func() time.Time
}

func New(ctx context.Context, store domain.StateStore, window time.Duration, capacity int, logger *slog.Logger) *Store {
	s := &Store{
		store:  store,
		logger: logger.With(slog.String("component", "history")),
		window: window,
		cap:    capacity,
		now:    time.Now,
	}

	snaps, err := store.LoadHistory(ctx)
	if err != nil {
		// Потеря несохраненной истории - принятый компромисс, стартуем пустыми
		s.logger.Error("failed to load price history", "err", err)
		return s
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.Before(snaps[j].Timestamp)
	})
	s.snaps = snaps
	s.evictLocked()
	s.logger.Info("price history loaded", "entries", len(s.snaps))
	return s
}

// Record вставляет срез (одинаковый timestamp перезаписывается), затем
// вычищает все, что старше окна или сверх лимита, и сохраняет копию
// состояния уже без замка.
func (s *Store) Record(ctx context.Context, snap domain.PriceSnapshot) {
	if snap.IsEmpty() {
		// В истории не бывает пустых срезов
		s.logger.Warn("empty snapshot ignored")
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	replaced := false
	for i := range s.snaps {
		if s.snaps[i].Timestamp.Equal(snap.Timestamp) {
			s.snaps[i] = snap
			replaced = true
			break
		}
	}
	if !replaced {
		s.snaps = append(s.snaps, snap)
		sort.Slice(s.snaps, func(i, j int) bool {
			return s.snaps[i].Timestamp.Before(s.snaps[j].Timestamp)
		})
	}
	s.evictLocked()
	cp := s.copyLocked()
	s.mu.Unlock()

	if err := s.store.SaveHistory(ctx, cp); err != nil {
		// In-memory состояние остается источником истины
		s.logger.Error("failed to persist price history", "err", err)
	}
}

// Current возвращает срез с максимальным timestamp
func (s *Store) Current() (domain.PriceSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snaps) == 0 {
		return domain.PriceSnapshot{}, false
	}
	return s.snaps[len(s.snaps)-1], true
}

// AsOf возвращает срез, ближайший к моменту "now - ago" по модулю разницы.
// Точного совпадения не требуется; при равном расстоянии побеждает более
// свежий кандидат. Пустая история - это "данных нет", а не ошибка.
func (s *Store) AsOf(ago time.Duration) (domain.PriceSnapshot, bool) {
	target := s.now().Add(-ago)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snaps) == 0 {
		return domain.PriceSnapshot{}, false
	}

	best := s.snaps[0]
	bestDelta := absDelta(best.Timestamp, target)
	for _, snap := range s.snaps[1:] {
		// <=, чтобы при равном расстоянии победил более поздний:
		// список отсортирован по возрастанию
		if d := absDelta(snap.Timestamp, target); d <= bestDelta {
			best = snap
			bestDelta = d
		}
	}
	return best, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

// Snapshots возвращает копию всей удержанной истории
func (s *Store) Snapshots() []domain.PriceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) evictLocked() {
	cutoff := s.now().Add(-s.window)
	firstAlive := 0
	for firstAlive < len(s.snaps) && s.snaps[firstAlive].Timestamp.Before(cutoff) {
		firstAlive++
	}
	if s.cap > 0 && len(s.snaps)-firstAlive > s.cap {
		firstAlive = len(s.snaps) - s.cap
	}
	if firstAlive > 0 {
		s.snaps = append([]domain.PriceSnapshot(nil), s.snaps[firstAlive:]...)
	}
}

func (s *Store) copyLocked() []domain.PriceSnapshot {
	return append([]domain.PriceSnapshot(nil), s.snaps...)
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
