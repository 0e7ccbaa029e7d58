package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valuatech/portfolio-service/internal/models"
)

// WeightPolicy controls the denominator of the daily weight when only part
// of the quantity map has a price on a given date.
type WeightPolicy string

const (
	// WeightPolicyPricedOnly computes weights over that day's priced
	// subset and emits no rows for unpriced assets (observed behavior
	// of the system this engine replaces).
	WeightPolicyPricedOnly WeightPolicy = "priced_only"
	// WeightPolicyZeroFill additionally emits unpriced assets with zero
	// amount and zero weight so every date has a dense row set.
	WeightPolicyZeroFill WeightPolicy = "zero_fill"
)

// ProjectionSummary reports the per-row anomalies absorbed during a
// projection. Anomalies never abort a run; they are counted and returned
// alongside the produced rows.
type ProjectionSummary struct {
	RowsProduced          int `json:"rows_produced"`
	DatesSkipped          int `json:"dates_skipped"`
	NegativeQuantitySkips int `json:"negative_quantity_skips"`
	PrecisionFailures     int `json:"precision_failures"`
}

// Projector turns a fixed quantity map plus the price catalog into a
// holdings time series. The quantity map is held constant for the whole
// call and each date reads only that date's prices, so dates are mutually
// independent.
type Projector struct {
	prices *PriceTable
	policy WeightPolicy
}

// NewProjector creates a projector over a price snapshot
func NewProjector(prices *PriceTable, policy WeightPolicy) *Projector {
	if policy == "" {
		policy = WeightPolicyPricedOnly
	}
	return &Projector{prices: prices, policy: policy}
}

// Project computes holding rows for every (asset, date) pair that can be
// valued. Dates must be ascending and deduplicated. For each date, assets
// without a price that day are skipped for that day only; a date where no
// asset is priced produces no rows at all. Amounts are rounded to 2 places,
// weights to 6.
func (p *Projector) Project(portfolio string, quantities map[string]decimal.Decimal, dates []time.Time) ([]models.Holding, ProjectionSummary) {
	var summary ProjectionSummary

	symbols := make([]string, 0, len(quantities))
	for s := range quantities {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var rows []models.Holding
	for _, date := range dates {
		d := DateOf(date)

		amounts := make(map[string]decimal.Decimal, len(symbols))
		total := decimal.Zero
		for _, symbol := range symbols {
			price, ok := p.prices.PriceOn(symbol, d)
			if !ok {
				continue
			}
			if !price.IsPositive() {
				summary.PrecisionFailures++
				continue
			}
			amt := quantities[symbol].Mul(price).Round(amountPlaces)
			amounts[symbol] = amt
			total = total.Add(amt)
		}

		if total.IsZero() {
			summary.DatesSkipped++
			continue
		}

		for _, symbol := range symbols {
			amt, priced := amounts[symbol]
			if !priced {
				if p.policy == WeightPolicyZeroFill {
					rows = append(rows, models.Holding{
						Portfolio: portfolio,
						Symbol:    symbol,
						Date:      d,
						Quantity:  quantities[symbol],
						Amount:    decimal.Zero,
						Weight:    decimal.Zero,
					})
					summary.RowsProduced++
				}
				continue
			}
			if quantities[symbol].IsNegative() {
				summary.NegativeQuantitySkips++
				continue
			}
			rows = append(rows, models.Holding{
				Portfolio: portfolio,
				Symbol:    symbol,
				Date:      d,
				Quantity:  quantities[symbol],
				Amount:    amt,
				Weight:    amt.Div(total).Round(weightPlaces),
			})
			summary.RowsProduced++
		}
	}

	return rows, summary
}
