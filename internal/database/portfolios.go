package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/valuatech/portfolio-service/internal/models"
)

// CreatePortfolio inserts a new portfolio, updating its initial value on conflict
func (db *DB) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (name, initial_value, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET initial_value = EXCLUDED.initial_value
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query, p.Name, p.InitialValue, now).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPortfolio retrieves a portfolio by name. Returns (nil, nil) when no
// such portfolio exists, so callers can tell absence from a failed query.
func (db *DB) GetPortfolio(ctx context.Context, name string) (*models.Portfolio, error) {
	query := `SELECT id, name, initial_value, created_at FROM portfolios WHERE name = $1`

	var p models.Portfolio
	err := db.conn.QueryRowContext(ctx, query, name).Scan(&p.ID, &p.Name, &p.InitialValue, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

// ListPortfolios retrieves all portfolios ordered by name
func (db *DB) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	query := `SELECT id, name, initial_value, created_at FROM portfolios ORDER BY name ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.InitialValue, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// CountPortfolios returns the number of portfolios
func (db *DB) CountPortfolios(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM portfolios`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count portfolios: %w", err)
	}
	return count, nil
}
