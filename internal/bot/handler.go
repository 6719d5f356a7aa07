package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
	"github.com/romanzzaa/crypto-digest-bot/internal/history"
	"github.com/romanzzaa/crypto-digest-bot/internal/registry"
	"github.com/romanzzaa/crypto-digest-bot/internal/scheduler"
)

// Текстовые константы для кнопок и callback-данных (чтобы не опечататься)
const (
	BtnPrices  = "🤑 Узнать цены"
	BtnRefresh = "🔄 Обновить данные"
	BtnUsers   = "👤 Пользователи"

	cbPrices = "explain_cripto"
	cbUsers  = "count_users"

	webhookPath = "/webhook"
)

type Handler struct {
	bot       *tgbotapi.BotAPI
	history   *history.Store
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	table     domain.SymbolTable

	adminID    int64
	webhookURL string
	listenAddr string
	logger     *slog.Logger
}

func NewHandler(
	bot *tgbotapi.BotAPI,
	hist *history.Store,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	table domain.SymbolTable,
	adminID int64,
	webhookURL string,
	listenAddr string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		bot:        bot,
		history:    hist,
		registry:   reg,
		scheduler:  sched,
		table:      table,
		adminID:    adminID,
		webhookURL: webhookURL,
		listenAddr: listenAddr,
		logger:     logger.With(slog.String("component", "bot")),
	}
}

// Start слушает обновления (вебхук или long polling) до отмены контекста
func (h *Handler) Start(ctx context.Context) error {
	updates, err := h.updatesChan(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go h.handleUpdate(ctx, update)
		case <-ctx.Done():
			return nil
		}
	}
}

// updatesChan выбирает режим: при заданном WEBHOOK_URL поднимаем свой
// HTTP-сервер, иначе работаем через GetUpdatesChan как обычно
func (h *Handler) updatesChan(ctx context.Context) (<-chan tgbotapi.Update, error) {
	if h.webhookURL == "" {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return h.bot.GetUpdatesChan(u), nil
	}

	wh, err := tgbotapi.NewWebhook(h.webhookURL + webhookPath)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if _, err := h.bot.Request(wh); err != nil {
		return nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	updates := make(chan tgbotapi.Update, h.bot.Buffer)

	mux := http.NewServeMux()
	mux.HandleFunc(webhookPath, func(w http.ResponseWriter, r *http.Request) {
		update, err := h.bot.HandleUpdate(r)
		if err != nil {
			// Кривой payload глотаем молча: транспорту всегда отвечаем 200,
			// его ретраи нам не нужны
			h.logger.Warn("malformed webhook payload", "err", err)
		} else {
			select {
			case updates <- *update:
			default:
				h.logger.Warn("update queue full, update dropped")
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: h.listenAddr, Handler: mux}
	go func() {
		h.logger.Info("webhook server listening", slog.String("addr", h.listenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("webhook server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return updates, nil
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.MyChatMember != nil:
		h.handleChatMember(ctx, update.MyChatMember)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// From бывает пустым (посты в каналах); без отправителя админская
	// проверка просто не пройдет
	var fromID int64
	if msg.From != nil {
		fromID = msg.From.ID
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			h.cmdStart(ctx, msg)
		case "price":
			h.sendCurrentPrices(ctx, msg.Chat.ID)
		case "history":
			h.cmdHistory(msg.Chat.ID)
		case "count_users":
			h.cmdCountUsers(fromID, msg.Chat.ID)
		}
		return
	}

	// Кнопочные тексты прилетают обычными сообщениями
	switch msg.Text {
	case BtnPrices, BtnRefresh:
		h.sendCurrentPrices(ctx, msg.Chat.ID)
	case BtnUsers:
		h.cmdCountUsers(fromID, msg.Chat.ID)
	default:
		h.send(msg.Chat.ID, "Используйте меню для навигации.")
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	if cb.Message == nil {
		return
	}

	var fromID int64
	if cb.From != nil {
		fromID = cb.From.ID
	}

	switch cb.Data {
	case cbPrices:
		h.sendCurrentPrices(ctx, cb.Message.Chat.ID)
	case cbUsers:
		h.cmdCountUsers(fromID, cb.Message.Chat.ID)
	}
}

// handleChatMember чистит реестр, когда пользователь блокирует бота или
// уходит из чата: следующая рассылка его уже не увидит
func (h *Handler) handleChatMember(ctx context.Context, m *tgbotapi.ChatMemberUpdated) {
	status := m.NewChatMember.Status
	if status != "left" && status != "kicked" {
		return
	}
	if h.registry.Remove(ctx, m.Chat.ID) {
		h.logger.Info("subscriber left, removed", slog.Int64("chat_id", m.Chat.ID))
	}
}

// --- Commands ---

func (h *Handler) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	firstName, username := "", ""
	if msg.From != nil {
		firstName = msg.From.FirstName
		username = msg.From.UserName
	}

	if h.registry.AddIfAbsent(ctx, msg.Chat.ID, firstName, username) {
		h.logger.Info("new subscriber",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Int("total", h.registry.Count()))
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID,
		fmt.Sprintf("👋 Привет, %s! Я помогу тебе отслеживать цены криптовалют.", firstName))
	reply.ReplyMarkup = h.mainKeyboard(msg.From)
	h.bot.Send(reply)
}

// sendCurrentPrices отвечает актуальным дайджестом. Если истории еще нет
// (бот только запустился), сначала синхронно пробуем обновиться.
func (h *Handler) sendCurrentPrices(ctx context.Context, chatID int64) {
	snap, ok := h.history.Current()
	if !ok {
		if err := h.scheduler.RefreshNow(ctx); err != nil {
			h.logger.Warn("on-demand refresh failed", "err", err)
			h.send(chatID, "🚫 Не удалось получить данные о криптовалюте в данный момент.")
			return
		}
		if snap, ok = h.history.Current(); !ok {
			h.send(chatID, "🚫 Не удалось получить данные о криптовалюте в данный момент.")
			return
		}
	}

	reply := tgbotapi.NewMessage(chatID, history.FormatDigest(snap, h.table, "на текущий момент"))
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnRefresh, cbPrices),
		),
	)
	h.bot.Send(reply)
}

// cmdHistory показывает срезы "12 часов назад" и "24 часа назад" из одной
// общей истории (ближайший по времени срез, точного совпадения не нужно)
func (h *Handler) cmdHistory(chatID int64) {
	periods := []struct {
		ago   time.Duration
		label string
	}{
		{12 * time.Hour, "12 часов назад"},
		{24 * time.Hour, "24 часа назад"},
	}

	var sb strings.Builder
	for i, p := range periods {
		if i > 0 {
			sb.WriteString("\n")
		}
		snap, _ := h.history.AsOf(p.ago)
		sb.WriteString(history.FormatDigest(snap, h.table, p.label))
	}
	h.send(chatID, sb.String())
}

func (h *Handler) cmdCountUsers(fromID, chatID int64) {
	if h.adminID == 0 || fromID != h.adminID {
		h.send(chatID, "🚫 У вас нет прав для просмотра списка пользователей.")
		return
	}

	subs := h.registry.All()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Общее количество пользователей: %d\n\n", len(subs)))
	sb.WriteString("Список пользователей:\n")
	for _, sub := range subs {
		sb.WriteString(fmt.Sprintf("👤 %s (@%s)\n", sub.FirstName, sub.Username))
	}
	h.send(chatID, sb.String())
}

// --- UI Helpers ---

func (h *Handler) mainKeyboard(from *tgbotapi.User) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnPrices, cbPrices),
		),
	}
	if from != nil && h.adminID != 0 && from.ID == h.adminID {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnUsers, cbUsers),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		h.logger.Warn("failed to send reply", slog.Int64("chat_id", chatID), "err", err)
	}
}
