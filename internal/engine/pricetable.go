package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valuatech/portfolio-service/internal/models"
)

// DateOf truncates a timestamp to its calendar date at midnight UTC.
// All engine date keys go through this so that prices, transactions, and
// holdings loaded from different sources compare equal on the same day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PriceTable is a read-only in-memory snapshot of the price catalog.
// The engine loads it in full before a calculation run, so projections
// never interleave reads with writes.
type PriceTable struct {
	prices map[string]map[time.Time]decimal.Decimal
	first  map[string]decimal.Decimal
	firstD map[string]time.Time
	dates  []time.Time
}

// NewPriceTable builds a snapshot from bulk price rows. A duplicate
// (symbol, date) keeps the last row seen, matching the store's upsert.
func NewPriceTable(rows []models.AssetPrice) *PriceTable {
	t := &PriceTable{
		prices: make(map[string]map[time.Time]decimal.Decimal),
		first:  make(map[string]decimal.Decimal),
		firstD: make(map[string]time.Time),
	}

	dateSet := make(map[time.Time]struct{})
	for _, row := range rows {
		d := DateOf(row.Date)
		byDate, ok := t.prices[row.Symbol]
		if !ok {
			byDate = make(map[time.Time]decimal.Decimal)
			t.prices[row.Symbol] = byDate
		}
		byDate[d] = row.Price
		dateSet[d] = struct{}{}

		if firstDate, ok := t.firstD[row.Symbol]; !ok || !d.After(firstDate) {
			t.firstD[row.Symbol] = d
			t.first[row.Symbol] = row.Price
		}
	}

	t.dates = make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		t.dates = append(t.dates, d)
	}
	sort.Slice(t.dates, func(i, j int) bool { return t.dates[i].Before(t.dates[j]) })

	return t
}

// PriceOn returns the price of a symbol on an exact date
func (t *PriceTable) PriceOn(symbol string, date time.Time) (decimal.Decimal, bool) {
	p, ok := t.prices[symbol][DateOf(date)]
	return p, ok
}

// FirstPrice returns the earliest recorded price for a symbol
func (t *PriceTable) FirstPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := t.first[symbol]
	return p, ok
}

// Dates returns every distinct date in the catalog, ascending
func (t *PriceTable) Dates() []time.Time {
	out := make([]time.Time, len(t.dates))
	copy(out, t.dates)
	return out
}

// DatesFrom returns the distinct ascending dates on or after cutover where
// at least one of the given symbols has a recorded price
func (t *PriceTable) DatesFrom(cutover time.Time, symbols []string) []time.Time {
	c := DateOf(cutover)
	var out []time.Time
	for _, d := range t.dates {
		if d.Before(c) {
			continue
		}
		for _, s := range symbols {
			if _, ok := t.prices[s][d]; ok {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Len reports the number of price points in the table
func (t *PriceTable) Len() int {
	n := 0
	for _, byDate := range t.prices {
		n += len(byDate)
	}
	return n
}
