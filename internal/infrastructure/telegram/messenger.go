package telegram

import (
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

// Messenger - адаптер доставки поверх Bot API. Здесь же классифицируются
// ошибки доставки: 403 Forbidden (бот заблокирован, аккаунт удален) -
// постоянная, все остальное (429, таймауты, сеть) - временная, получатель
// остается в реестре до следующей рассылки.
type Messenger struct {
	bot *tgbotapi.BotAPI
}

func NewMessenger(bot *tgbotapi.BotAPI) *Messenger {
	return &Messenger{bot: bot}
}

func (m *Messenger) Send(chatID int64, text string) error {
	_, err := m.bot.Send(tgbotapi.NewMessage(chatID, text))
	return classifyDeliveryError(chatID, err)
}

func classifyDeliveryError(chatID int64, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("chat %d: %s: %w", chatID, apiErr.Message, domain.ErrRecipientGone)
	}
	return fmt.Errorf("chat %d: %w", chatID, err)
}
