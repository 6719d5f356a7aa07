package history

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

func TestFormatDigestPrecision(t *testing.T) {
	table := domain.SymbolTable{"BTC": 2, "PEPE": 6}
	snap := domain.PriceSnapshot{
		Timestamp: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Prices: map[string]decimal.Decimal{
			"BTC":  decimal.RequireFromString("65123.456"),
			"PEPE": decimal.RequireFromString("0.00001234"),
		},
	}

	text := FormatDigest(snap, table, "на текущий момент")

	assert.Contains(t, text, "BTC: $65123.46")
	assert.Contains(t, text, "PEPE: $0.000012")
	assert.Contains(t, text, "01.06.2025 09:30:00")
}

func TestFormatDigestDefaultPrecision(t *testing.T) {
	table := domain.SymbolTable{}
	snap := domain.PriceSnapshot{
		Timestamp: time.Now(),
		Prices: map[string]decimal.Decimal{
			"SOL": decimal.RequireFromString("145.6789"),
		},
	}

	text := FormatDigest(snap, table, "на текущий момент")
	assert.Contains(t, text, "SOL: $145.68")
}

func TestFormatDigestEmptySnapshot(t *testing.T) {
	text := FormatDigest(domain.PriceSnapshot{}, domain.SymbolTable{}, "12 часов назад")
	assert.Equal(t, "Данных 12 часов назад нет.", text)
}

func TestFormatDigestStableSymbolOrder(t *testing.T) {
	table := domain.SymbolTable{"BTC": 2, "ADA": 3, "ETH": 2}
	snap := domain.PriceSnapshot{
		Timestamp: time.Now(),
		Prices: map[string]decimal.Decimal{
			"ETH": decimal.NewFromInt(3200),
			"BTC": decimal.NewFromInt(65000),
			"ADA": decimal.NewFromInt(1),
		},
	}

	text := FormatDigest(snap, table, "на текущий момент")

	ada := strings.Index(text, "ADA")
	btc := strings.Index(text, "BTC")
	eth := strings.Index(text, "ETH")
	require.NotEqual(t, -1, ada)
	assert.Less(t, ada, btc)
	assert.Less(t, btc, eth)
}
