package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

// Config - глобальная конфигурация бота, собирается из ENV один раз на старте
type Config struct {
	TelegramToken string // Токен Telegram-бота (обязателен)
	CMCAPIKey     string // Токен CoinMarketCap (обязателен)
	AdminID       int64  // Telegram ID администратора (0 = админ-команды выключены)

	WebhookURL string // Базовый URL вебхука; пусто = long polling
	ListenAddr string // Адрес HTTP-сервера вебхука

	DataDir     string // Каталог для users.json / price_history.json
	PostgresDSN string // Если задан - храним состояние в Postgres вместо файлов

	Symbols         domain.SymbolTable
	RefreshInterval time.Duration
	BroadcastTimes  []BroadcastTime
	HistoryWindow   time.Duration
	HistoryCap      int
}

// BroadcastTime - время рассылки по стенным часам
type BroadcastTime struct {
	Hour   int
	Minute int
}

func (b BroadcastTime) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", b.Minute, b.Hour)
}

func (b BroadcastTime) String() string {
	return fmt.Sprintf("%02d:%02d", b.Hour, b.Minute)
}

// DefaultSymbols - таблица точности по умолчанию
func DefaultSymbols() domain.SymbolTable {
	return domain.SymbolTable{
		"BTC": 2, "ETH": 2, "ADA": 3, "PEPE": 6, "SOL": 2, "SUI": 2, "TON": 2, "FET": 3,
		"APT": 3, "AVAX": 2, "FLOKI": 6, "TWT": 3, "ALGO": 3, "CAKE": 2, "1INCH": 3,
		"MANA": 3, "FLOW": 3, "EGLD": 2, "ARB": 3, "DYDX": 2, "APEX": 3, "CRV": 3,
		"ATOM": 2, "POL": 3, "OP": 2, "SEI": 3,
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TG_BOT_TOKEN"),
		CMCAPIKey:     os.Getenv("CMC_API_KEY"),
		WebhookURL:    strings.TrimRight(os.Getenv("WEBHOOK_URL"), "/"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8443"),
		DataDir:       getEnv("DATA_DIR", "."),
		PostgresDSN:   os.Getenv("DATABASE_URL"),
	}

	if cfg.TelegramToken == "" || cfg.CMCAPIKey == "" {
		return nil, fmt.Errorf("required env vars are not set: TG_BOT_TOKEN, CMC_API_KEY")
	}

	var err error

	if raw := os.Getenv("ADMIN_ID"); raw != "" {
		cfg.AdminID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_ID %q: %w", raw, err)
		}
	}

	cfg.Symbols, err = ParseSymbolTable(os.Getenv("SYMBOLS"))
	if err != nil {
		return nil, err
	}

	cfg.RefreshInterval, err = time.ParseDuration(getEnv("REFRESH_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}

	cfg.HistoryWindow, err = time.ParseDuration(getEnv("HISTORY_WINDOW", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_WINDOW: %w", err)
	}

	cfg.HistoryCap, err = strconv.Atoi(getEnv("HISTORY_CAP", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_CAP: %w", err)
	}

	cfg.BroadcastTimes, err = ParseBroadcastTimes(getEnv("BROADCAST_TIMES", "09:00,19:00"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseSymbolTable разбирает строку вида "BTC:2,PEPE:6,SOL".
// Точность можно опустить, тогда берется DefaultPrecision.
// Пустая строка = таблица по умолчанию.
func ParseSymbolTable(raw string) (domain.SymbolTable, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultSymbols(), nil
	}

	table := make(domain.SymbolTable)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		symbol, precRaw, hasPrec := strings.Cut(part, ":")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			return nil, fmt.Errorf("invalid SYMBOLS entry %q", part)
		}

		prec := domain.DefaultPrecision
		if hasPrec {
			p, err := strconv.Atoi(strings.TrimSpace(precRaw))
			if err != nil || p < 0 {
				return nil, fmt.Errorf("invalid precision in SYMBOLS entry %q", part)
			}
			prec = int32(p)
		}
		table[symbol] = prec
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("SYMBOLS is set but contains no symbols")
	}
	return table, nil
}

// ParseBroadcastTimes разбирает "09:00,19:00"
func ParseBroadcastTimes(raw string) ([]BroadcastTime, error) {
	var times []BroadcastTime
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid BROADCAST_TIMES entry %q, expected HH:MM", part)
		}
		hour, err := strconv.Atoi(hh)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("invalid hour in BROADCAST_TIMES entry %q", part)
		}
		minute, err := strconv.Atoi(mm)
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("invalid minute in BROADCAST_TIMES entry %q", part)
		}
		times = append(times, BroadcastTime{Hour: hour, Minute: minute})
	}

	if len(times) == 0 {
		return nil, fmt.Errorf("BROADCAST_TIMES contains no entries")
	}
	return times, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
