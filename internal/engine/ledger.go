package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valuatech/portfolio-service/internal/models"
)

// ReplayTransactions applies a portfolio's ledger on top of its baseline
// quantities and returns the adjusted quantity map valid from the cutover
// date onward. Transactions after the cutover are ignored. Replay order is
// ascending date, insertion order (serial ID) breaking ties. BUY adds the
// recorded quantity, SELL subtracts; a subtraction that would go below zero
// is clamped to zero. The baseline map is not modified.
func ReplayTransactions(baseline map[string]decimal.Decimal, txs []models.Transaction, cutover time.Time) map[string]decimal.Decimal {
	quantities := make(map[string]decimal.Decimal, len(baseline))
	for symbol, qty := range baseline {
		quantities[symbol] = qty
	}

	ordered := make([]models.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := DateOf(ordered[i].Date), DateOf(ordered[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ordered[i].ID < ordered[j].ID
	})

	c := DateOf(cutover)
	for _, t := range ordered {
		if DateOf(t.Date).After(c) {
			continue
		}
		current := quantities[t.Symbol]
		var next decimal.Decimal
		if t.TransactionType == models.TransactionTypeBuy {
			next = current.Add(t.Quantity).Round(quantityPlaces)
		} else {
			next = current.Sub(t.Quantity).Round(quantityPlaces)
			if next.IsNegative() {
				next = decimal.Zero
			}
		}
		quantities[t.Symbol] = next
	}

	return quantities
}
