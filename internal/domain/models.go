package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPrecision - знаков после запятой, если для символа не задано иное
const DefaultPrecision int32 = 2

// SymbolTable - вселенная отслеживаемых тикеров и точность отображения каждого
type SymbolTable map[string]int32

func (t SymbolTable) Precision(symbol string) int32 {
	if p, ok := t[symbol]; ok {
		return p
	}
	return DefaultPrecision
}

// Symbols возвращает тикеры в стабильном (отсортированном) порядке
func (t SymbolTable) Symbols() []string {
	symbols := make([]string, 0, len(t))
	for s := range t {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// --- Entities ---

// PriceSnapshot - срез цен на один момент времени.
// Неизменяем после создания. Prices содержит только те символы,
// которые реально пришли в ответе API: частичный ответ допустим,
// отсутствующие символы просто не попадают в карту.
type PriceSnapshot struct {
	Timestamp time.Time
	Prices    map[string]decimal.Decimal
}

func (s PriceSnapshot) IsEmpty() bool {
	return len(s.Prices) == 0
}

// Subscriber - получатель рассылки. Создается при первом /start,
// удаляется из реестра, когда доставка падает с постоянной ошибкой
// (бот заблокирован / аккаунт удален) или пользователь ушел из чата.
type Subscriber struct {
	ChatID    int64
	FirstName string
	Username  string
	CreatedAt time.Time
}
