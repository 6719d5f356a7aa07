package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/romanzzaa/crypto-digest-bot/internal/config"
	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
	"github.com/romanzzaa/crypto-digest-bot/internal/history"
	"github.com/romanzzaa/crypto-digest-bot/internal/registry"
)

const currentLabel = "на текущий момент"

// Scheduler запускает два класса задач: периодическое обновление истории
// цен и рассылку дайджеста по стенным часам. Обе работают против общих
// History Store и Registry, никаких своих данных у планировщика нет.
type Scheduler struct {
	quotes    domain.QuoteProvider
	history   *history.Store
	registry  *registry.Registry
	messenger domain.Messenger
	table     domain.SymbolTable
	logger    *slog.Logger

	refreshEvery time.Duration
	times        []config.BroadcastTime

	// Рассылка не должна накладываться сама на себя (дубли сообщений),
	// тик поверх еще идущего просто пропускается
	broadcastMu sync.Mutex
}

func New(
	quotes domain.QuoteProvider,
	hist *history.Store,
	reg *registry.Registry,
	messenger domain.Messenger,
	table domain.SymbolTable,
	refreshEvery time.Duration,
	times []config.BroadcastTime,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		quotes:       quotes,
		history:      hist,
		registry:     reg,
		messenger:    messenger,
		table:        table,
		refreshEvery: refreshEvery,
		times:        times,
		logger:       logger.With(slog.String("component", "scheduler")),
	}
}

// Run регистрирует cron-задачи и блокируется до отмены контекста
func (s *Scheduler) Run(ctx context.Context) error {
	// Первичное наполнение истории, чтобы не ждать первого тика
	if err := s.RefreshNow(ctx); err != nil {
		s.logger.Warn("initial refresh failed, starting with empty history", "err", err)
	}

	c := cron.New()

	if _, err := c.AddFunc("@every "+s.refreshEvery.String(), func() {
		s.refreshTick(ctx)
	}); err != nil {
		return err
	}

	for _, bt := range s.times {
		if _, err := c.AddFunc(bt.CronSpec(), func() {
			s.broadcastTick(ctx)
		}); err != nil {
			return err
		}
	}

	s.logger.Info("scheduler started",
		slog.String("refresh_every", s.refreshEvery.String()),
		slog.Int("broadcast_entries", len(s.times)))

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RefreshNow синхронно забирает котировки и записывает срез в историю.
// Используется тиками и on-demand запросами, когда истории еще нет.
func (s *Scheduler) RefreshNow(ctx context.Context) error {
	snap, err := s.quotes.Fetch(ctx)
	if err != nil {
		return err
	}
	if snap.IsEmpty() {
		s.logger.Warn("quote API returned no symbols, tick skipped")
		return nil
	}
	s.history.Record(ctx, snap)
	s.logger.Info("price snapshot recorded",
		slog.Int("symbols", len(snap.Prices)),
		slog.Int("history_len", s.history.Len()))
	return nil
}

func (s *Scheduler) refreshTick(ctx context.Context) {
	// Отказ API = пропуск тика: история не меняется, пустой срез
	// не вставляется, следующий тик повторит попытку сам
	if err := s.RefreshNow(ctx); err != nil {
		s.logger.Error("refresh tick failed", "err", err)
	}
}

func (s *Scheduler) broadcastTick(ctx context.Context) {
	if !s.broadcastMu.TryLock() {
		s.logger.Warn("previous broadcast still running, tick skipped")
		return
	}
	defer s.broadcastMu.Unlock()

	s.Broadcast(ctx)
}

// Broadcast рассылает текущий дайджест всем подписчикам. Доставки
// независимы: отказ одного получателя не прерывает остальных.
// Постоянно недоступные получатели вычищаются из реестра только после
// прохода по всему списку.
func (s *Scheduler) Broadcast(ctx context.Context) {
	snap, ok := s.history.Current()
	if !ok {
		if err := s.RefreshNow(ctx); err != nil {
			s.logger.Warn("nothing to broadcast, refresh failed", "err", err)
			return
		}
		if snap, ok = s.history.Current(); !ok {
			return
		}
	}

	text := history.FormatDigest(snap, s.table, currentLabel)
	subs := s.registry.All()

	var gone []int64
	sent := 0
	for _, sub := range subs {
		err := s.messenger.Send(sub.ChatID, text)
		if err == nil {
			sent++
			continue
		}
		if domain.IsRecipientGone(err) {
			s.logger.Info("recipient gone, scheduling prune", slog.Int64("chat_id", sub.ChatID))
			gone = append(gone, sub.ChatID)
			continue
		}
		// Временный сбой: получатель остается, повторим в следующую рассылку
		s.logger.Warn("delivery failed", slog.Int64("chat_id", sub.ChatID), "err", err)
	}

	for _, chatID := range gone {
		s.registry.Remove(ctx, chatID)
	}

	s.logger.Info("broadcast finished",
		slog.Int("recipients", len(subs)),
		slog.Int("sent", sent),
		slog.Int("pruned", len(gone)))
}
