package telegram

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

func TestClassifyBlockedAsPermanent(t *testing.T) {
	err := classifyDeliveryError(42, &tgbotapi.Error{
		Code:    403,
		Message: "Forbidden: bot was blocked by the user",
	})

	require.Error(t, err)
	assert.True(t, domain.IsRecipientGone(err))
}

func TestClassifyDeactivatedAsPermanent(t *testing.T) {
	err := classifyDeliveryError(42, &tgbotapi.Error{
		Code:    403,
		Message: "Forbidden: user is deactivated",
	})

	assert.True(t, domain.IsRecipientGone(err))
}

func TestClassifyRateLimitAsTransient(t *testing.T) {
	err := classifyDeliveryError(42, &tgbotapi.Error{
		Code:    429,
		Message: "Too Many Requests: retry after 30",
	})

	require.Error(t, err)
	assert.False(t, domain.IsRecipientGone(err))
}

func TestClassifyNetworkErrorAsTransient(t *testing.T) {
	err := classifyDeliveryError(42, errors.New("dial tcp: i/o timeout"))

	require.Error(t, err)
	assert.False(t, domain.IsRecipientGone(err))
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classifyDeliveryError(42, nil))
}
