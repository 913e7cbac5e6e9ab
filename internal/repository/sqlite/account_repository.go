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

// AccountRepository implements domain.AccountRepository using SQLite
type AccountRepository struct {
	q sqlx.ExtContext
}

type accountRow struct {
	ID             string        `db:"id"`
	Available      int64         `db:"available"`
	Held           int64         `db:"held"`
	TelegramChatID sql.NullInt64 `db:"telegram_chat_id"`
	CreatedAt      int64         `db:"created_at"`
	UpdatedAt      int64         `db:"updated_at"`
}

func (row accountRow) toDomain() *domain.Account {
	return &domain.Account{
		UserID:         row.ID,
		Available:      domain.Credits(row.Available),
		Held:           domain.Credits(row.Held),
		TelegramChatID: row.TelegramChatID.Int64,
		CreatedAt:      fromMillis(row.CreatedAt),
		UpdatedAt:      fromMillis(row.UpdatedAt),
	}
}

const accountColumns = `id, available, held, telegram_chat_id, created_at, updated_at`

func accountNotFound(userID string) error {
	return domain.WithMetadata(domain.CodeNotFound, "account not found", map[string]string{"user_id": userID})
}

// Create creates a new account unless one already exists for the user
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (bool, error) {
	if account == nil || account.UserID == "" {
		return false, fmt.Errorf("account user id is required")
	}
	if account.Available < 0 || account.Held < 0 {
		return false, fmt.Errorf("account balances must not be negative")
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	var chatID any
	if account.TelegramChatID != 0 {
		chatID = account.TelegramChatID
	}

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		account.UserID,
		int64(account.Available),
		int64(account.Held),
		chatID,
		toMillis(account.CreatedAt),
		toMillis(account.UpdatedAt),
	)
	if err != nil {
		return false, storeError(fmt.Errorf("failed to create account: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected == 1, nil
}

// GetByID retrieves an account by user ID
func (r *AccountRepository) GetByID(ctx context.Context, userID string) (*domain.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accountNotFound(userID)
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to get account: %w", err))
	}
	return row.toDomain(), nil
}

// GetByTelegramChatID retrieves the account linked to a Telegram chat
func (r *AccountRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*domain.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+accountColumns+` FROM accounts WHERE telegram_chat_id = ?`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WithMetadata(domain.CodeNotFound, "no account linked to chat", map[string]string{
			"chat_id": fmt.Sprint(chatID),
		})
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to get account by chat: %w", err))
	}
	return row.toDomain(), nil
}

// SetTelegramChatID links a chat to the account. A chat owned by another
// account is refused rather than moved.
func (r *AccountRepository) SetTelegramChatID(ctx context.Context, userID string, chatID int64) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET telegram_chat_id = ?, updated_at = ? WHERE id = ?
	`, chatID, toMillis(time.Now()), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WithMetadata(domain.CodeForbidden, "chat is linked to another account", map[string]string{
				"chat_id": fmt.Sprint(chatID),
			})
		}
		return storeError(fmt.Errorf("failed to link chat: %w", err))
	}
	return requireRow(result, accountNotFound(userID))
}

// Hold moves amount from available to held in one conditional statement
func (r *AccountRepository) Hold(ctx context.Context, userID string, amount domain.Credits) error {
	if amount <= 0 {
		return fmt.Errorf("hold amount must be positive")
	}
	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET available = available - ?, held = held + ?, updated_at = ?
		WHERE id = ? AND available >= ?
	`, int64(amount), int64(amount), toMillis(time.Now()), userID, int64(amount))
	if err != nil {
		return storeError(fmt.Errorf("failed to hold credits: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read hold result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	account, err := r.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	return domain.WithMetadata(domain.CodeInsufficientCredits, "insufficient credits", map[string]string{
		"user_id":   userID,
		"available": account.Available.String(),
		"required":  amount.String(),
	})
}

// MoveHeld takes amount out of fromUserID's held balance and credits it to
// toUserID's available balance. When both are the same user this is a
// refund and happens in a single statement.
func (r *AccountRepository) MoveHeld(ctx context.Context, fromUserID, toUserID string, amount domain.Credits) error {
	if amount <= 0 {
		return fmt.Errorf("move amount must be positive")
	}
	now := toMillis(time.Now())
	shortfall := domain.WithMetadata(domain.CodeEscrowInconsistency, "held balance is smaller than the escrowed amount", map[string]string{
		"user_id": fromUserID,
		"amount":  amount.String(),
	})

	if fromUserID == toUserID {
		result, err := r.q.ExecContext(ctx, `
			UPDATE accounts
			SET held = held - ?, available = available + ?, updated_at = ?
			WHERE id = ? AND held >= ?
		`, int64(amount), int64(amount), now, fromUserID, int64(amount))
		if err != nil {
			return storeError(fmt.Errorf("failed to refund held credits: %w", err))
		}
		return requireRow(result, shortfall)
	}

	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET held = held - ?, updated_at = ?
		WHERE id = ? AND held >= ?
	`, int64(amount), now, fromUserID, int64(amount))
	if err != nil {
		return storeError(fmt.Errorf("failed to debit held credits: %w", err))
	}
	if err := requireRow(result, shortfall); err != nil {
		return err
	}

	result, err = r.q.ExecContext(ctx, `
		UPDATE accounts SET available = available + ?, updated_at = ? WHERE id = ?
	`, int64(amount), now, toUserID)
	if err != nil {
		return storeError(fmt.Errorf("failed to credit payee: %w", err))
	}
	return requireRow(result, domain.WithMetadata(domain.CodeEscrowInconsistency, "payee account is missing", map[string]string{
		"user_id": toUserID,
	}))
}

// Grant adds amount to the user's available balance
func (r *AccountRepository) Grant(ctx context.Context, userID string, amount domain.Credits) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}
	result, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET available = available + ?, updated_at = ? WHERE id = ?
	`, int64(amount), toMillis(time.Now()), userID)
	if err != nil {
		return storeError(fmt.Errorf("failed to grant credits: %w", err))
	}
	return requireRow(result, accountNotFound(userID))
}

func requireRow(result sql.Result, otherwise error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return otherwise
	}
	return nil
}
