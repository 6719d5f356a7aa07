package domain

import "context"

// QuoteProvider - адаптер к API котировок (CoinMarketCap)
type QuoteProvider interface {
	// Один батч-запрос на всю таблицу символов. Ошибка означает
	// "обновления в этом цикле нет", а не фатальный сбой.
	Fetch(ctx context.Context) (PriceSnapshot, error)
}

// StateStore - персистентность подписчиков и истории цен.
// Отсутствующий или пустой документ - это "данных еще нет", не ошибка.
type StateStore interface {
	LoadSubscribers(ctx context.Context) ([]Subscriber, error)
	SaveSubscribers(ctx context.Context, subs []Subscriber) error

	LoadHistory(ctx context.Context) ([]PriceSnapshot, error)
	SaveHistory(ctx context.Context, snaps []PriceSnapshot) error
}

// Messenger - отправка сообщения одному получателю
type Messenger interface {
	Send(chatID int64, text string) error
}
