package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/glebk/skillswap/internal/domain"
)

// TransactionRepository implements domain.TransactionRepository using SQLite.
// Rows are append-only; triggers reject UPDATE and DELETE.
type TransactionRepository struct {
	q sqlx.ExtContext
}

type transactionRow struct {
	ID         string `db:"id"`
	Type       string `db:"type"`
	SessionID  string `db:"session_id"`
	FromUserID string `db:"from_user_id"`
	ToUserID   string `db:"to_user_id"`
	Amount     int64  `db:"amount"`
	CreatedAt  int64  `db:"created_at"`
}

// Append records a ledger mutation
func (r *TransactionRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, type, session_id, from_user_id, to_user_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		string(tx.Type),
		tx.SessionID,
		tx.FromUserID,
		tx.ToUserID,
		int64(tx.Amount),
		toMillis(tx.CreatedAt),
	)
	if err != nil {
		return storeError(fmt.Errorf("failed to append transaction: %w", err))
	}
	return nil
}

// ListByUser returns the user's transactions, newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []transactionRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT id, type, session_id, from_user_id, to_user_id, amount, created_at
		FROM credit_transactions
		WHERE from_user_id = ? OR to_user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to list transactions: %w", err))
	}

	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, &domain.Transaction{
			ID:         row.ID,
			Type:       domain.TransactionType(row.Type),
			SessionID:  row.SessionID,
			FromUserID: row.FromUserID,
			ToUserID:   row.ToUserID,
			Amount:     domain.Credits(row.Amount),
			CreatedAt:  fromMillis(row.CreatedAt),
		})
	}
	return txs, nil
}
