package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/valuatech/portfolio-service/internal/models"
)

const appendTransactionQuery = `
	INSERT INTO transactions (portfolio, symbol, date, transaction_type, amount, quantity, request_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	RETURNING id
`

// AppendTransaction appends a transaction to the ledger. The ledger is
// append-only: there is no update or delete, and the serial ID records
// insertion order for same-date replay ties.
func (db *DB) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, appendTransactionQuery,
		t.Portfolio, t.Symbol, t.Date, t.TransactionType, t.Amount, t.Quantity, t.RequestID, now,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	t.CreatedAt = now
	return nil
}

// AppendTransactionPair appends the sell and buy legs of one transaction
// atomically: either both land in the ledger or neither does. The sell leg
// is inserted first so it takes the lower ID for same-date replay order.
func (db *DB) AppendTransactionPair(ctx context.Context, sell, buy *models.Transaction) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, leg := range []*models.Transaction{sell, buy} {
		err := tx.QueryRowContext(ctx, appendTransactionQuery,
			leg.Portfolio, leg.Symbol, leg.Date, leg.TransactionType, leg.Amount, leg.Quantity, leg.RequestID, now,
		).Scan(&leg.ID)
		if err != nil {
			return fmt.Errorf("failed to append %s leg: %w", leg.TransactionType, err)
		}
		leg.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction pair: %w", err)
	}
	return nil
}

// ListTransactions retrieves a portfolio's transactions up to and including
// a date, in replay order (date ascending, then insertion order)
func (db *DB) ListTransactions(ctx context.Context, portfolio string, upTo time.Time) ([]models.Transaction, error) {
	query := `
		SELECT id, portfolio, symbol, date, transaction_type, amount, quantity, COALESCE(request_id, ''), created_at
		FROM transactions
		WHERE portfolio = $1 AND date <= $2
		ORDER BY date ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolio, upTo)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListAllTransactions retrieves every transaction for a portfolio in replay order
func (db *DB) ListAllTransactions(ctx context.Context, portfolio string) ([]models.Transaction, error) {
	query := `
		SELECT id, portfolio, symbol, date, transaction_type, amount, quantity, COALESCE(request_id, ''), created_at
		FROM transactions
		WHERE portfolio = $1
		ORDER BY date ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, portfolio)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(&t.ID, &t.Portfolio, &t.Symbol, &t.Date, &t.TransactionType,
			&t.Amount, &t.Quantity, &t.RequestID, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// TransactionExistsByRequestID checks whether a transaction with the given
// request ID was already recorded, for consumer idempotency
func (db *DB) TransactionExistsByRequestID(ctx context.Context, requestID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE request_id = $1)`
	var exists bool
	err := db.conn.QueryRowContext(ctx, query, requestID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// CountTransactions returns the number of ledger entries
func (db *DB) CountTransactions(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
