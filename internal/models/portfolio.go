package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio represents a managed portfolio with the initial value used to
// seed baseline quantities from its target allocation
type Portfolio struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	InitialValue decimal.Decimal `json:"initial_value"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Allocation represents the target weight of one asset within a portfolio.
// Weights for a portfolio are intended to sum to 1; the engine never
// normalizes or enforces that.
type Allocation struct {
	ID        int             `json:"id"`
	Portfolio string          `json:"portfolio"`
	Symbol    string          `json:"symbol"`
	Weight    decimal.Decimal `json:"weight"`
	CreatedAt time.Time       `json:"created_at"`
}
