package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/valuatech/portfolio-service/internal/models"
)

// CreateAsset inserts a new asset, updating the display name on conflict
func (db *DB) CreateAsset(ctx context.Context, a *models.Asset) error {
	query := `
		INSERT INTO assets (symbol, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query, a.Symbol, a.Name, now).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	a.CreatedAt = now
	return nil
}

// GetAsset retrieves an asset by symbol. Returns (nil, nil) when no such
// asset exists.
func (db *DB) GetAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	query := `SELECT id, symbol, name, created_at FROM assets WHERE symbol = $1`

	var a models.Asset
	err := db.conn.QueryRowContext(ctx, query, symbol).Scan(&a.ID, &a.Symbol, &a.Name, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &a, nil
}

// ListAssets retrieves all assets ordered by symbol
func (db *DB) ListAssets(ctx context.Context) ([]models.Asset, error) {
	query := `SELECT id, symbol, name, created_at FROM assets ORDER BY symbol ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// CountAssets returns the number of assets
func (db *DB) CountAssets(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}
