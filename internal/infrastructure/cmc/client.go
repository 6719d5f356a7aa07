package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/romanzzaa/crypto-digest-bot/internal/domain"
)

const (
	BaseURL        = "https://pro-api.coinmarketcap.com"
	quotesEndpoint = "/v1/cryptocurrency/quotes/latest"
)

// APIError - типизированный отказ API котировок. Для вызывающего это
// "обновления в этом цикле нет", дальше границы клиента не пробрасывается.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cmc api error: [%d] %s", e.Status, e.Reason)
}

type Client struct {
	baseURL    string
	apiKey     string
	table      domain.SymbolTable
	httpClient *http.Client
	now        func() time.Time
}

// NewClient принимает timeout явно
func NewClient(apiKey string, table domain.SymbolTable, timeout time.Duration) *Client {
	return &Client{
		baseURL:    BaseURL,
		apiKey:     apiKey,
		table:      table,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Fetch делает ОДИН батч-запрос на всю таблицу символов, чтобы не упираться
// в rate limit. Округление до настроенной точности происходит здесь же:
// дальше по конвейеру все видят уже округленные значения.
func (c *Client) Fetch(ctx context.Context) (domain.PriceSnapshot, error) {
	symbols := c.table.Symbols()

	q := url.Values{}
	q.Set("symbol", strings.Join(symbols, ","))
	q.Set("convert", "USD")
	fullURL := c.baseURL + quotesEndpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	req.Header.Set("Accepts", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return domain.PriceSnapshot{}, &APIError{
			Status: resp.StatusCode,
			Reason: trimBody(respBytes),
		}
	}

	var parsed quotesResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return domain.PriceSnapshot{}, &APIError{
			Status: resp.StatusCode,
			Reason: fmt.Sprintf("malformed body: %v", err),
		}
	}
	if parsed.Status.ErrorCode != 0 {
		return domain.PriceSnapshot{}, &APIError{
			Status: resp.StatusCode,
			Reason: parsed.Status.ErrorMessage,
		}
	}

	// Частичный ответ допустим: отсутствующие символы просто пропускаем,
	// нулями их не подменяем
	snap := domain.PriceSnapshot{
		Timestamp: c.now(),
		Prices:    make(map[string]decimal.Decimal, len(symbols)),
	}
	for _, symbol := range symbols {
		listing, ok := parsed.Data[symbol]
		if !ok {
			continue
		}
		snap.Prices[symbol] = listing.Quote.USD.Price.Round(c.table.Precision(symbol))
	}

	return snap, nil
}

func trimBody(b []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(b))
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
