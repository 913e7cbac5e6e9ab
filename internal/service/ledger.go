package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebk/skillswap/internal/domain"
)

// Ledger moves credits between balances. Every method runs inside the
// caller's unit of work and appends one transaction record per mutation.
type Ledger struct {
	newID func() string
}

// NewLedger creates a Ledger
func NewLedger(newID func() string) *Ledger {
	return &Ledger{newID: newID}
}

// Hold earmarks the session's credit amount from the student's available
// balance and opens its escrow entry.
func (l *Ledger) Hold(ctx context.Context, repos domain.Repositories, session *domain.Session, now time.Time) (*domain.EscrowEntry, error) {
	if err := repos.Accounts().Hold(ctx, session.StudentID, session.CreditAmount); err != nil {
		return nil, err
	}

	entry := &domain.EscrowEntry{
		ID:        l.newID(),
		SessionID: session.ID,
		PayerID:   session.StudentID,
		PayeeID:   session.TeacherID,
		Amount:    session.CreditAmount,
		State:     domain.EscrowHeld,
		CreatedAt: now,
	}
	if err := repos.Escrow().Create(ctx, entry); err != nil {
		return nil, err
	}

	if err := repos.Transactions().Append(ctx, &domain.Transaction{
		ID:         l.newID(),
		Type:       domain.TransactionHold,
		SessionID:  session.ID,
		FromUserID: session.StudentID,
		ToUserID:   session.StudentID,
		Amount:     session.CreditAmount,
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

// Release pays the session's escrow to the teacher. It reports false when the
// entry was already released.
func (l *Ledger) Release(ctx context.Context, repos domain.Repositories, sessionID string, now time.Time) (bool, error) {
	return l.settle(ctx, repos, sessionID, domain.EscrowReleased, now)
}

// Refund returns the session's escrow to the student. It reports false when
// the entry was already refunded.
func (l *Ledger) Refund(ctx context.Context, repos domain.Repositories, sessionID string, now time.Time) (bool, error) {
	return l.settle(ctx, repos, sessionID, domain.EscrowRefunded, now)
}

func (l *Ledger) settle(ctx context.Context, repos domain.Repositories, sessionID string, target domain.EscrowState, now time.Time) (bool, error) {
	entry, err := repos.Escrow().GetBySessionID(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, domain.WithMetadata(domain.CodeEscrowInconsistency, "session holds credit but has no escrow entry", map[string]string{
			"session_id": sessionID,
		})
	}
	if err != nil {
		return false, err
	}

	switch {
	case entry.State == target:
		return false, nil
	case entry.State.IsTerminal():
		return false, domain.WithMetadata(domain.CodeEscrowInconsistency, fmt.Sprintf("escrow already %s, cannot become %s", entry.State, target), map[string]string{
			"session_id": sessionID,
			"escrow_id":  entry.ID,
		})
	}

	settled, err := repos.Escrow().Settle(ctx, entry.ID, target, now)
	if err != nil {
		return false, err
	}
	if !settled {
		return false, domain.WithMetadata(domain.CodeConcurrentModification, "escrow entry settled concurrently", map[string]string{
			"escrow_id": entry.ID,
		})
	}

	payee := entry.PayeeID
	txType := domain.TransactionRelease
	if target == domain.EscrowRefunded {
		payee = entry.PayerID
		txType = domain.TransactionRefund
	}
	if err := repos.Accounts().MoveHeld(ctx, entry.PayerID, payee, entry.Amount); err != nil {
		return false, err
	}

	if err := repos.Transactions().Append(ctx, &domain.Transaction{
		ID:         l.newID(),
		Type:       txType,
		SessionID:  sessionID,
		FromUserID: entry.PayerID,
		ToUserID:   payee,
		Amount:     entry.Amount,
		CreatedAt:  now,
	}); err != nil {
		return false, err
	}
	return true, nil
}
