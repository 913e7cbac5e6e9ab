package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebk/skillswap/internal/domain"
)

func TestEscrowRepositorySettlesOnce(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "teacher", 0)
	seedAccount(t, db, "student", domain.NewCredits(2))
	seedSession(t, db, "s-1")

	entry := &domain.EscrowEntry{
		ID:        "e-1",
		SessionID: "s-1",
		PayerID:   "student",
		PayeeID:   "teacher",
		Amount:    domain.NewCredits(2),
		State:     domain.EscrowHeld,
	}
	if err := db.Escrow().Create(ctx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	duplicate := *entry
	duplicate.ID = "e-2"
	if err := db.Escrow().Create(ctx, &duplicate); !errors.Is(err, domain.ErrEscrowInconsistency) {
		t.Fatalf("expected one entry per session, got %v", err)
	}

	at := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	settled, err := db.Escrow().Settle(ctx, "e-1", domain.EscrowReleased, at)
	if err != nil || !settled {
		t.Fatalf("expected first settle to win, settled=%v err=%v", settled, err)
	}
	settled, err = db.Escrow().Settle(ctx, "e-1", domain.EscrowRefunded, at)
	if err != nil || settled {
		t.Fatalf("expected second settle to be a no-op, settled=%v err=%v", settled, err)
	}

	got, err := db.Escrow().GetBySessionID(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.EscrowReleased || got.SettledAt == nil || !got.SettledAt.Equal(at) {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestEscrowRepositoryRejectsNonTerminalSettle(t *testing.T) {
	db := newTestDatabase(t)
	if _, err := db.Escrow().Settle(context.Background(), "e-1", domain.EscrowHeld, time.Now()); err == nil {
		t.Fatal("expected error settling to held")
	}
}
