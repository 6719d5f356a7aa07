package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/crypto-digest-bot/internal/config"
	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
	"github.com/romanzzaa/crypto-digest-bot/internal/history"
	"github.com/romanzzaa/crypto-digest-bot/internal/registry"
)

// --- Fakes ---

type memStore struct {
	mu    sync.Mutex
	subs  []domain.Subscriber
	snaps []domain.PriceSnapshot
}

func (m *memStore) LoadSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Subscriber(nil), m.subs...), nil
}

func (m *memStore) SaveSubscribers(ctx context.Context, subs []domain.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append([]domain.Subscriber(nil), subs...)
	return nil
}

func (m *memStore) LoadHistory(ctx context.Context) ([]domain.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PriceSnapshot(nil), m.snaps...), nil
}

func (m *memStore) SaveHistory(ctx context.Context, snaps []domain.PriceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append([]domain.PriceSnapshot(nil), snaps...)
	return nil
}

type fakeQuotes struct {
	snap  domain.PriceSnapshot
	err   error
	calls int
}

func (f *fakeQuotes) Fetch(ctx context.Context) (domain.PriceSnapshot, error) {
	f.calls++
	if f.err != nil {
		return domain.PriceSnapshot{}, f.err
	}
	return f.snap, nil
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      map[int64][]string
	permanent map[int64]bool
	transient map[int64]bool

	began   chan struct{} // сигналит о старте доставки, если задан
	blockOn chan struct{} // доставка ждет закрытия канала, если задан
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		sent:      make(map[int64][]string),
		permanent: make(map[int64]bool),
		transient: make(map[int64]bool),
	}
}

func (f *fakeMessenger) Send(chatID int64, text string) error {
	if f.began != nil {
		select {
		case f.began <- struct{}{}:
		default:
		}
	}
	if f.blockOn != nil {
		<-f.blockOn
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.permanent[chatID] {
		return fmt.Errorf("chat %d: blocked: %w", chatID, domain.ErrRecipientGone)
	}
	if f.transient[chatID] {
		return errors.New("telegram: retry after 30")
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTable = domain.SymbolTable{"BTC": 2}

func testSnapshot() domain.PriceSnapshot {
	return domain.PriceSnapshot{
		Timestamp: time.Now(),
		Prices:    map[string]decimal.Decimal{"BTC": decimal.NewFromInt(65000)},
	}
}

func newTestScheduler(t *testing.T, quotes *fakeQuotes, msgr *fakeMessenger, chatIDs ...int64) (*Scheduler, *registry.Registry, *history.Store) {
	t.Helper()
	ctx := context.Background()
	mem := &memStore{}

	hist := history.New(ctx, mem, 24*time.Hour, 24, discardLogger())
	reg := registry.New(ctx, mem, discardLogger())
	for _, id := range chatIDs {
		reg.AddIfAbsent(ctx, id, fmt.Sprintf("user%d", id), fmt.Sprintf("u%d", id))
	}

	times := []config.BroadcastTime{{Hour: 9}, {Hour: 19}}
	s := New(quotes, hist, reg, msgr, testTable, time.Hour, times, discardLogger())
	return s, reg, hist
}

// --- Tests ---

func TestBroadcastFanOutIsolation(t *testing.T) {
	quotes := &fakeQuotes{snap: testSnapshot()}
	msgr := newFakeMessenger()
	msgr.permanent[3] = true

	s, reg, _ := newTestScheduler(t, quotes, msgr, 1, 2, 3, 4, 5)
	require.NoError(t, s.RefreshNow(context.Background()))

	s.Broadcast(context.Background())

	// Заблокировавший бота удален, остальные получили одно и то же сообщение
	assert.Equal(t, 4, reg.Count())
	for _, id := range []int64{1, 2, 4, 5} {
		require.Len(t, msgr.sent[id], 1, "chat %d", id)
	}
	assert.Equal(t, msgr.sent[1][0], msgr.sent[5][0])
	assert.Empty(t, msgr.sent[3])

	for _, sub := range reg.All() {
		assert.NotEqual(t, int64(3), sub.ChatID)
	}
}

func TestBroadcastTransientFailureKeepsSubscriber(t *testing.T) {
	quotes := &fakeQuotes{snap: testSnapshot()}
	msgr := newFakeMessenger()
	msgr.transient[2] = true

	s, reg, _ := newTestScheduler(t, quotes, msgr, 1, 2, 3)
	require.NoError(t, s.RefreshNow(context.Background()))

	s.Broadcast(context.Background())

	// Таймаут/рейт-лимит не выбивает из реестра: повторим в следующий раз
	assert.Equal(t, 3, reg.Count())
	assert.Len(t, msgr.sent[1], 1)
	assert.Len(t, msgr.sent[3], 1)
	assert.Empty(t, msgr.sent[2])
}

func TestRefreshFailureLeavesHistoryUnchanged(t *testing.T) {
	quotes := &fakeQuotes{snap: testSnapshot()}
	msgr := newFakeMessenger()

	s, _, hist := newTestScheduler(t, quotes, msgr)
	require.NoError(t, s.RefreshNow(context.Background()))
	before, ok := hist.Current()
	require.True(t, ok)

	quotes.err = errors.New("api down")
	require.Error(t, s.RefreshNow(context.Background()))

	// История нетронута, пустой срез не вставлен
	assert.Equal(t, 1, hist.Len())
	after, ok := hist.Current()
	require.True(t, ok)
	assert.Equal(t, before.Timestamp, after.Timestamp)
}

func TestEmptyFetchResultNotStored(t *testing.T) {
	quotes := &fakeQuotes{snap: domain.PriceSnapshot{Timestamp: time.Now()}}
	msgr := newFakeMessenger()

	s, _, hist := newTestScheduler(t, quotes, msgr)
	require.NoError(t, s.RefreshNow(context.Background()))

	assert.Equal(t, 0, hist.Len())
}

func TestBroadcastRefreshesWhenHistoryEmpty(t *testing.T) {
	quotes := &fakeQuotes{snap: testSnapshot()}
	msgr := newFakeMessenger()

	s, _, hist := newTestScheduler(t, quotes, msgr, 1)
	require.Equal(t, 0, hist.Len())

	s.Broadcast(context.Background())

	assert.Equal(t, 1, quotes.calls)
	assert.Equal(t, 1, hist.Len())
	assert.Len(t, msgr.sent[1], 1)
}

func TestBroadcastTickSkipsWhileRunning(t *testing.T) {
	quotes := &fakeQuotes{snap: testSnapshot()}
	msgr := newFakeMessenger()
	msgr.began = make(chan struct{}, 1)
	msgr.blockOn = make(chan struct{})

	s, _, _ := newTestScheduler(t, quotes, msgr, 1, 2)
	require.NoError(t, s.RefreshNow(context.Background()))

	firstDone := make(chan struct{})
	go func() {
		s.broadcastTick(context.Background())
		close(firstDone)
	}()

	// Первая рассылка зависла на доставке и держит замок
	<-msgr.began

	secondDone := make(chan struct{})
	go func() {
		s.broadcastTick(context.Background())
		close(secondDone)
	}()

	// Тик поверх идущей рассылки возвращается сразу, не дожидаясь доставок
	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("overlapping broadcast tick did not return immediately")
	}

	close(msgr.blockOn)
	<-firstDone

	// Каждый подписчик получил рассылку ровно один раз
	for _, id := range []int64{1, 2} {
		assert.Len(t, msgr.sent[id], 1, "chat %d", id)
	}
}

func TestBroadcastSkippedWhenNoDataAvailable(t *testing.T) {
	quotes := &fakeQuotes{err: errors.New("api down")}
	msgr := newFakeMessenger()

	s, reg, _ := newTestScheduler(t, quotes, msgr, 1, 2)

	s.Broadcast(context.Background())

	assert.Empty(t, msgr.sent)
	assert.Equal(t, 2, reg.Count())
}
