package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents the derived daily snapshot of one asset in one
// portfolio: quantity held, market value, and share of the portfolio's
// total value on that date. Holdings are engine-owned state, uniquely
// keyed by (portfolio, symbol, date) and always regenerable from the
// allocation, price history, ledger, and initial value.
type Holding struct {
	ID        int             `json:"id"`
	Portfolio string          `json:"portfolio"`
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Quantity  decimal.Decimal `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Weight    decimal.Decimal `json:"weight"`
	CreatedAt time.Time       `json:"created_at"`
}

// PortfolioValue is the holdings amount aggregated by (date, portfolio)
type PortfolioValue struct {
	Portfolio  string          `json:"portfolio"`
	Date       time.Time       `json:"date"`
	TotalValue decimal.Decimal `json:"total_value"`
}
