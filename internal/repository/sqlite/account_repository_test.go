package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/glebk/skillswap/internal/domain"
)

func TestAccountRepositoryCreateIsIdempotent(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "alice", domain.NewCredits(5))

	created, err := db.Accounts().Create(ctx, &domain.Account{UserID: "alice", Available: domain.NewCredits(100)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created {
		t.Fatal("expected existing account to be kept")
	}
	account, _ := db.Accounts().GetByID(ctx, "alice")
	if account.Available != domain.NewCredits(5) {
		t.Fatalf("balance changed to %s", account.Available)
	}
}

func TestAccountRepositoryHold(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "alice", domain.NewCredits(3))

	if err := db.Accounts().Hold(ctx, "alice", domain.NewCredits(2)); err != nil {
		t.Fatalf("hold: %v", err)
	}
	err := db.Accounts().Hold(ctx, "alice", domain.NewCredits(2))
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}

	account, _ := db.Accounts().GetByID(ctx, "alice")
	if account.Available != domain.NewCredits(1) || account.Held != domain.NewCredits(2) {
		t.Fatalf("unexpected balances available=%s held=%s", account.Available, account.Held)
	}
}

func TestAccountRepositoryHoldMissingAccount(t *testing.T) {
	db := newTestDatabase(t)
	err := db.Accounts().Hold(context.Background(), "ghost", domain.NewCredits(1))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccountRepositoryMoveHeld(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "student", domain.NewCredits(4))
	seedAccount(t, db, "teacher", 0)

	if err := db.Accounts().Hold(ctx, "student", domain.NewCredits(3)); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := db.Accounts().MoveHeld(ctx, "student", "teacher", domain.NewCredits(2)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := db.Accounts().MoveHeld(ctx, "student", "student", domain.NewCredits(1)); err != nil {
		t.Fatalf("refund: %v", err)
	}

	student, _ := db.Accounts().GetByID(ctx, "student")
	teacher, _ := db.Accounts().GetByID(ctx, "teacher")
	if student.Available != domain.NewCredits(2) || student.Held != 0 {
		t.Fatalf("student balances available=%s held=%s", student.Available, student.Held)
	}
	if teacher.Available != domain.NewCredits(2) {
		t.Fatalf("teacher available=%s", teacher.Available)
	}

	err := db.Accounts().MoveHeld(ctx, "student", "teacher", domain.NewCredits(1))
	if !errors.Is(err, domain.ErrEscrowInconsistency) {
		t.Fatalf("expected escrow inconsistency, got %v", err)
	}
}

func TestAccountRepositoryTelegramLink(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "alice", 0)
	seedAccount(t, db, "bob", 0)

	if err := db.Accounts().SetTelegramChatID(ctx, "alice", 42); err != nil {
		t.Fatalf("link alice: %v", err)
	}
	if err := db.Accounts().SetTelegramChatID(ctx, "alice", 42); err != nil {
		t.Fatalf("relink same account: %v", err)
	}

	err := db.Accounts().SetTelegramChatID(ctx, "bob", 42)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for a chat owned by alice, got %v", err)
	}
	account, err := db.Accounts().GetByTelegramChatID(ctx, 42)
	if err != nil {
		t.Fatalf("get by chat: %v", err)
	}
	if account.UserID != "alice" {
		t.Fatalf("expected chat to stay with alice, got %s", account.UserID)
	}
	bob, _ := db.Accounts().GetByID(ctx, "bob")
	if bob.TelegramChatID != 0 {
		t.Fatalf("expected bob unlinked, got %d", bob.TelegramChatID)
	}

	if err := db.Accounts().SetTelegramChatID(ctx, "ghost", 7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccountRepositoryGrant(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "alice", 0)

	if err := db.Accounts().Grant(ctx, "alice", 250); err != nil {
		t.Fatalf("grant: %v", err)
	}
	account, _ := db.Accounts().GetByID(ctx, "alice")
	if account.Available.String() != "2.50" {
		t.Fatalf("expected 2.50, got %s", account.Available)
	}
}
