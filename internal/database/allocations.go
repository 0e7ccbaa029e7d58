package database

import (
	"context"
	"fmt"
	"time"

	"github.com/valuatech/portfolio-service/internal/models"
)

// CreateAllocation inserts an allocation weight, updating it on conflict
func (db *DB) CreateAllocation(ctx context.Context, a *models.Allocation) error {
	query := `
		INSERT INTO portfolio_weights (portfolio, symbol, weight, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (portfolio, symbol) DO UPDATE SET weight = EXCLUDED.weight
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query, a.Portfolio, a.Symbol, a.Weight, now).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}
	a.CreatedAt = now
	return nil
}

// CreateAllocationBatch inserts multiple allocation weights efficiently
func (db *DB) CreateAllocationBatch(ctx context.Context, allocations []models.Allocation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolio_weights (portfolio, symbol, weight, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (portfolio, symbol) DO UPDATE SET weight = EXCLUDED.weight
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, a := range allocations {
		if _, err := stmt.ExecContext(ctx, a.Portfolio, a.Symbol, a.Weight, now); err != nil {
			return fmt.Errorf("failed to insert allocation for %s/%s: %w", a.Portfolio, a.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListAllocations retrieves a portfolio's allocation ordered by symbol
func (db *DB) ListAllocations(ctx context.Context, portfolio string) ([]models.Allocation, error) {
	query := `
		SELECT id, portfolio, symbol, weight, created_at
		FROM portfolio_weights
		WHERE portfolio = $1
		ORDER BY symbol ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolio)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var allocations []models.Allocation
	for rows.Next() {
		var a models.Allocation
		if err := rows.Scan(&a.ID, &a.Portfolio, &a.Symbol, &a.Weight, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}
