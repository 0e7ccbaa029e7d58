package database

import (
	"context"
	"fmt"
	"time"

	"github.com/valuatech/portfolio-service/internal/models"
)

const holdingUpsertQuery = `
	INSERT INTO portfolio_holdings (portfolio, symbol, date, quantity, amount, weight, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (portfolio, symbol, date) DO UPDATE SET
		quantity = EXCLUDED.quantity,
		amount = EXCLUDED.amount,
		weight = EXCLUDED.weight
`

// ReplacePortfolioHoldings clears a portfolio's holdings and inserts the
// given rows in one transaction, for full initial projections
func (db *DB) ReplacePortfolioHoldings(ctx context.Context, portfolio string, rows []models.Holding) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_holdings WHERE portfolio = $1`, portfolio); err != nil {
		return fmt.Errorf("failed to clear holdings for %s: %w", portfolio, err)
	}

	stmt, err := tx.PrepareContext(ctx, holdingUpsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, h := range rows {
		if _, err := stmt.ExecContext(ctx, h.Portfolio, h.Symbol, h.Date, h.Quantity, h.Amount, h.Weight, now); err != nil {
			return fmt.Errorf("failed to insert holding for %s/%s: %w", h.Portfolio, h.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertHoldingsBatch inserts or updates holding rows keyed by
// (portfolio, symbol, date). Rows outside the batch are left untouched.
func (db *DB) UpsertHoldingsBatch(ctx context.Context, rows []models.Holding) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, holdingUpsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, h := range rows {
		if _, err := stmt.ExecContext(ctx, h.Portfolio, h.Symbol, h.Date, h.Quantity, h.Amount, h.Weight, now); err != nil {
			return fmt.Errorf("failed to upsert holding for %s/%s: %w", h.Portfolio, h.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetHoldings retrieves holding rows, optionally filtered by portfolio and
// date range, ordered by date, portfolio, symbol
func (db *DB) GetHoldings(ctx context.Context, portfolio string, startDate, endDate *time.Time) ([]models.Holding, error) {
	query := `
		SELECT id, portfolio, symbol, date, quantity, amount, weight, created_at
		FROM portfolio_holdings
		WHERE ($1 = '' OR portfolio = $1)
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date ASC, portfolio ASC, symbol ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolio, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		err := rows.Scan(&h.ID, &h.Portfolio, &h.Symbol, &h.Date, &h.Quantity, &h.Amount, &h.Weight, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetPortfolioValues aggregates holdings amount by (date, portfolio),
// optionally filtered by portfolio and date range
func (db *DB) GetPortfolioValues(ctx context.Context, portfolio string, startDate, endDate *time.Time) ([]models.PortfolioValue, error) {
	query := `
		SELECT portfolio, date, SUM(amount) AS total_value
		FROM portfolio_holdings
		WHERE ($1 = '' OR portfolio = $1)
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		GROUP BY portfolio, date
		ORDER BY date ASC, portfolio ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolio, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio values: %w", err)
	}
	defer rows.Close()

	var values []models.PortfolioValue
	for rows.Next() {
		var v models.PortfolioValue
		if err := rows.Scan(&v.Portfolio, &v.Date, &v.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// CountHoldings returns the number of holding rows
func (db *DB) CountHoldings(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM portfolio_holdings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count holdings: %w", err)
	}
	return count, nil
}
