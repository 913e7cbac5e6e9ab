package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/glebk/skillswap/internal/domain"
)

// LinkCodeRepository implements domain.LinkCodeRepository using SQLite
type LinkCodeRepository struct {
	q sqlx.ExtContext
}

type linkCodeRow struct {
	Code      string `db:"code"`
	ChatID    int64  `db:"chat_id"`
	ExpiresAt int64  `db:"expires_at"`
	CreatedAt int64  `db:"created_at"`
}

// Issue stores a new code for the chat. Codes already pending for the chat,
// and expired codes of any chat, are dropped.
func (r *LinkCodeRepository) Issue(ctx context.Context, code *domain.LinkCode) error {
	if code == nil || strings.TrimSpace(code.Code) == "" {
		return fmt.Errorf("link code is required")
	}
	if code.ChatID == 0 {
		return fmt.Errorf("link code chat id is required")
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	if !code.ExpiresAt.After(code.CreatedAt) {
		return fmt.Errorf("link code must expire after it is created")
	}

	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM telegram_link_codes WHERE chat_id = ? OR expires_at <= ?
	`, code.ChatID, toMillis(code.CreatedAt)); err != nil {
		return storeError(fmt.Errorf("failed to drop stale link codes: %w", err))
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO telegram_link_codes (code, chat_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, code.Code, code.ChatID, toMillis(code.ExpiresAt), toMillis(code.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("link code %s is already pending", code.Code)
		}
		return storeError(fmt.Errorf("failed to store link code: %w", err))
	}
	return nil
}

// Consume deletes the code in the same statement that reads it, so a code
// can be redeemed once.
func (r *LinkCodeRepository) Consume(ctx context.Context, code string, now time.Time) (*domain.LinkCode, error) {
	var row linkCodeRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		DELETE FROM telegram_link_codes WHERE code = ?
		RETURNING code, chat_id, expires_at, created_at
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, linkCodeNotFound()
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to consume link code: %w", err))
	}

	link := &domain.LinkCode{
		Code:      row.Code,
		ChatID:    row.ChatID,
		ExpiresAt: fromMillis(row.ExpiresAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}
	if !link.ExpiresAt.After(now) {
		return nil, linkCodeNotFound()
	}
	return link, nil
}

func linkCodeNotFound() error {
	return domain.NewError(domain.CodeNotFound, "link code not found or expired")
}
