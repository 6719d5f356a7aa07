package cmc

import "github.com/shopspring/decimal"

// quotesResponse - ответ /v1/cryptocurrency/quotes/latest.
// Интересует только цена в USD, остальное игнорируем.
type quotesResponse struct {
	Status apiStatus                `json:"status"`
	Data   map[string]cryptoListing `json:"data"`
}

type apiStatus struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type cryptoListing struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Quote  struct {
		USD struct {
			Price decimal.Decimal `json:"price"`
		} `json:"USD"`
	} `json:"quote"`
}
