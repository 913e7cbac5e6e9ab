package domain

import (
	"context"
	"time"
)

// Account holds a user's time-credit balances
type Account struct {
	UserID         string
	Available      Credits
	Held           Credits
	TelegramChatID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Total is the user's full balance; session operations only move credits
// between its two components or to the counterparty.
func (a *Account) Total() Credits {
	return a.Available + a.Held
}

// TransactionType is the reason a ledger mutation happened
type TransactionType string

const (
	TransactionHold    TransactionType = "hold"
	TransactionRelease TransactionType = "release"
	TransactionRefund  TransactionType = "refund"
	TransactionGrant   TransactionType = "grant"
)

// Transaction is an immutable record of one ledger mutation
type Transaction struct {
	ID         string
	Type       TransactionType
	SessionID  string
	FromUserID string
	ToUserID   string
	Amount     Credits
	CreatedAt  time.Time
}

// AccountRepository defines the interface for balance storage.
// Every mutating method is a single conditional statement.
type AccountRepository interface {
	// Create inserts account unless one exists; created reports which.
	Create(ctx context.Context, account *Account) (created bool, err error)
	GetByID(ctx context.Context, userID string) (*Account, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*Account, error)
	// SetTelegramChatID fails with ErrForbidden when another account
	// already owns the chat.
	SetTelegramChatID(ctx context.Context, userID string, chatID int64) error
	// Hold moves amount from available to held, failing with
	// ErrInsufficientCredits when available < amount.
	Hold(ctx context.Context, userID string, amount Credits) error
	// MoveHeld takes amount out of fromUserID's held balance and adds it to
	// toUserID's available balance.
	MoveHeld(ctx context.Context, fromUserID, toUserID string, amount Credits) error
	Grant(ctx context.Context, userID string, amount Credits) error
}

// TransactionRepository is the append-only audit log
type TransactionRepository interface {
	Append(ctx context.Context, tx *Transaction) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
}

// LinkCode is a one-time code handed out in a Telegram chat. Whoever
// redeems it before ExpiresAt gets that chat linked to their account.
type LinkCode struct {
	Code      string
	ChatID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LinkCodeRepository stores pending chat link codes
type LinkCodeRepository interface {
	// Issue stores code, replacing any code still pending for the chat.
	Issue(ctx context.Context, code *LinkCode) error
	// Consume deletes the code and returns it. Unknown and expired codes
	// are ErrNotFound.
	Consume(ctx context.Context, code string, now time.Time) (*LinkCode, error)
}
