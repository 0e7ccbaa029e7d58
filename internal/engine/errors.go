package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPortfolioNotFound indicates a request named an unknown portfolio
	ErrPortfolioNotFound = errors.New("portfolio not found")
	// ErrAssetNotFound indicates a request named an unknown asset
	ErrAssetNotFound = errors.New("asset not found")
)

// MissingPriceError rejects a transaction whose leg has no recorded price
// on the transaction date. A quantity cannot be derived without an
// exact-date price, so the whole transaction is refused rather than
// skipped.
type MissingPriceError struct {
	Symbol string
	Date   time.Time
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no price recorded for %s on %s", e.Symbol, e.Date.Format("2006-01-02"))
}
