package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetPrice represents the closing price of one asset on one date.
// At most one price exists per (symbol, date); dates need not be contiguous.
type AssetPrice struct {
	ID        int             `json:"id"`
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}
