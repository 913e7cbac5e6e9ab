package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/glebk/skillswap/internal/domain"
)

// EscrowRepository implements domain.EscrowRepository using SQLite
type EscrowRepository struct {
	q sqlx.ExtContext
}

type escrowRow struct {
	ID        string        `db:"id"`
	SessionID string        `db:"session_id"`
	PayerID   string        `db:"payer_id"`
	PayeeID   string        `db:"payee_id"`
	Amount    int64         `db:"amount"`
	State     string        `db:"state"`
	CreatedAt int64         `db:"created_at"`
	SettledAt sql.NullInt64 `db:"settled_at"`
}

// Create records a held entry. A session can have at most one.
func (r *EscrowRepository) Create(ctx context.Context, entry *domain.EscrowEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO escrow_entries (id, session_id, payer_id, payee_id, amount, state, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.SessionID,
		entry.PayerID,
		entry.PayeeID,
		int64(entry.Amount),
		string(entry.State),
		toMillis(entry.CreatedAt),
		nullableMillis(entry.SettledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Wrap(domain.CodeEscrowInconsistency, "session already has an escrow entry", err)
		}
		return storeError(fmt.Errorf("failed to create escrow entry: %w", err))
	}
	return nil
}

// GetBySessionID retrieves the escrow entry of a session
func (r *EscrowRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.EscrowEntry, error) {
	var row escrowRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT id, session_id, payer_id, payee_id, amount, state, created_at, settled_at
		FROM escrow_entries
		WHERE session_id = ?
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WithMetadata(domain.CodeNotFound, "escrow entry not found", map[string]string{"session_id": sessionID})
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to get escrow entry: %w", err))
	}
	return &domain.EscrowEntry{
		ID:        row.ID,
		SessionID: row.SessionID,
		PayerID:   row.PayerID,
		PayeeID:   row.PayeeID,
		Amount:    domain.Credits(row.Amount),
		State:     domain.EscrowState(row.State),
		CreatedAt: fromMillis(row.CreatedAt),
		SettledAt: optionalTime(row.SettledAt),
	}, nil
}

// Settle moves a held entry to a terminal state
func (r *EscrowRepository) Settle(ctx context.Context, id string, state domain.EscrowState, at time.Time) (bool, error) {
	if !state.IsTerminal() {
		return false, fmt.Errorf("escrow can only settle to released or refunded, got %q", state)
	}
	result, err := r.q.ExecContext(ctx, `
		UPDATE escrow_entries SET state = ?, settled_at = ?
		WHERE id = ? AND state = ?
	`, string(state), toMillis(at), id, string(domain.EscrowHeld))
	if err != nil {
		return false, storeError(fmt.Errorf("failed to settle escrow entry: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read settle result: %w", err)
	}
	return affected == 1, nil
}
