package domain

import (
	"context"
	"time"
)

// EscrowState is the lifecycle of held credits
type EscrowState string

const (
	EscrowHeld     EscrowState = "held"
	EscrowReleased EscrowState = "released"
	EscrowRefunded EscrowState = "refunded"
)

// IsTerminal reports whether the entry can no longer move.
func (s EscrowState) IsTerminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// EscrowEntry earmarks a student's credits for one session
type EscrowEntry struct {
	ID        string
	SessionID string
	PayerID   string
	PayeeID   string
	Amount    Credits
	State     EscrowState
	CreatedAt time.Time
	SettledAt *time.Time
}

// EscrowRepository defines the interface for escrow storage
type EscrowRepository interface {
	Create(ctx context.Context, entry *EscrowEntry) error
	GetBySessionID(ctx context.Context, sessionID string) (*EscrowEntry, error)
	// Settle moves a held entry to state. It reports false without error when
	// the entry was no longer held.
	Settle(ctx context.Context, id string, state EscrowState, at time.Time) (bool, error)
}
