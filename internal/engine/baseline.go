package engine

import (
	"github.com/shopspring/decimal"
	"github.com/valuatech/portfolio-service/internal/models"
)

// Decimal precisions for derived values. shopspring's Round is
// round-half-away-from-zero, which is round-half-up for the non-negative
// quantities, amounts, and weights this engine produces.
const (
	quantityPlaces = 6
	amountPlaces   = 2
	weightPlaces   = 6
)

// BaselineQuantities converts a portfolio's target allocation into its
// baseline quantity per asset: (weight × initial_value) / first recorded
// price, rounded to 6 places. The reference price is each asset's earliest
// price in the catalog, not the portfolio's nominal start date. Assets with
// no price history at all are excluded: an asset the engine cannot price
// cannot be held.
func BaselineQuantities(initialValue decimal.Decimal, allocations []models.Allocation, prices *PriceTable) map[string]decimal.Decimal {
	quantities := make(map[string]decimal.Decimal, len(allocations))
	for _, a := range allocations {
		if a.Weight.IsZero() {
			continue
		}
		firstPrice, ok := prices.FirstPrice(a.Symbol)
		if !ok || !firstPrice.IsPositive() {
			continue
		}
		qty := a.Weight.Mul(initialValue).Div(firstPrice).Round(quantityPlaces)
		quantities[a.Symbol] = qty
	}
	return quantities
}
