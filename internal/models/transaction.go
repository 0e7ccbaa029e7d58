package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction type constants
const (
	TransactionTypeBuy  = "BUY"
	TransactionTypeSell = "SELL"
)

// Transaction represents one leg of a recorded buy/sell event. The monetary
// amount is the input; quantity is always derived from the amount and the
// asset's price on the transaction date. The ledger is append-only and
// ordered by date, with insertion order (serial ID) breaking ties.
type Transaction struct {
	ID              int             `json:"id"`
	Portfolio       string          `json:"portfolio"`
	Symbol          string          `json:"symbol"`
	Date            time.Time       `json:"date"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Quantity        decimal.Decimal `json:"quantity"`
	RequestID       string          `json:"request_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TransactionRequest is a two-leg transaction as submitted by callers:
// sell one asset and buy another on the same date, both by monetary amount
type TransactionRequest struct {
	Portfolio  string          `json:"portfolio"`
	SellSymbol string          `json:"sell_symbol"`
	SellAmount decimal.Decimal `json:"sell_amount"`
	BuySymbol  string          `json:"buy_symbol"`
	BuyAmount  decimal.Decimal `json:"buy_amount"`
	Date       time.Time       `json:"date"`
	RequestID  string          `json:"request_id,omitempty"`
}
