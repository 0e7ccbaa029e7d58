package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/valuatech/portfolio-service/internal/models"
)

// CreatePrice inserts a price point, updating the price on conflict
func (db *DB) CreatePrice(ctx context.Context, p *models.AssetPrice) error {
	query := `
		INSERT INTO asset_prices (symbol, date, price, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO UPDATE SET price = EXCLUDED.price
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query, p.Symbol, p.Date, p.Price, now).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create price: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// CreatePriceBatch inserts multiple price points efficiently
func (db *DB) CreatePriceBatch(ctx context.Context, prices []models.AssetPrice) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_prices (symbol, date, price, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO UPDATE SET price = EXCLUDED.price
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range prices {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Date, p.Price, now); err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", p.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPrices retrieves the entire price catalog ordered by symbol and date
func (db *DB) ListPrices(ctx context.Context) ([]models.AssetPrice, error) {
	query := `
		SELECT id, symbol, date, price, created_at
		FROM asset_prices
		ORDER BY symbol ASC, date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	var prices []models.AssetPrice
	for rows.Next() {
		var p models.AssetPrice
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Date, &p.Price, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// GetPriceBySymbolAndDate retrieves the price for a symbol on an exact date
func (db *DB) GetPriceBySymbolAndDate(ctx context.Context, symbol string, date time.Time) (*models.AssetPrice, error) {
	query := `
		SELECT id, symbol, date, price, created_at
		FROM asset_prices
		WHERE symbol = $1 AND date = $2
	`
	var p models.AssetPrice
	err := db.conn.QueryRowContext(ctx, query, symbol, date).Scan(&p.ID, &p.Symbol, &p.Date, &p.Price, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("price not found for %s on %s", symbol, date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return &p, nil
}

// GetFirstPrice retrieves the earliest recorded price for a symbol
func (db *DB) GetFirstPrice(ctx context.Context, symbol string) (*models.AssetPrice, error) {
	query := `
		SELECT id, symbol, date, price, created_at
		FROM asset_prices
		WHERE symbol = $1
		ORDER BY date ASC
		LIMIT 1
	`
	var p models.AssetPrice
	err := db.conn.QueryRowContext(ctx, query, symbol).Scan(&p.ID, &p.Symbol, &p.Date, &p.Price, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no price history for %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first price: %w", err)
	}
	return &p, nil
}

// CountPrices returns the number of price points
func (db *DB) CountPrices(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM asset_prices`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices: %w", err)
	}
	return count, nil
}
