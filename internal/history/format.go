package history

import (
	"fmt"
	"sort"
	"strings"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

const timeLayout = "02.01.2006 15:04:05"

// FormatDigest собирает текст дайджеста для отправки. Чистая функция,
// никакого I/O. Для пустого среза возвращает отдельное сообщение
// "данных нет" с подписью периода.
func FormatDigest(snap domain.PriceSnapshot, table domain.SymbolTable, label string) string {
	if snap.IsEmpty() {
		return fmt.Sprintf("Данных %s нет.", label)
	}

	symbols := make([]string, 0, len(snap.Prices))
	for s := range snap.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🕒 Данные о криптовалютах %s:\n", label))
	sb.WriteString(fmt.Sprintf("\n⏱️ Время: %s\n", snap.Timestamp.Format(timeLayout)))
	for _, symbol := range symbols {
		price := snap.Prices[symbol].StringFixed(table.Precision(symbol))
		sb.WriteString(fmt.Sprintf("💰 %s: $%s\n", symbol, price))
	}
	return sb.String()
}
