package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/glebk/skillswap/internal/domain"
)

func TestCheckpointRepositoryFiresOnce(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedAccount(t, db, "teacher", 0)
	seedAccount(t, db, "student", 0)
	seedSession(t, db, "s-1")
	repo := db.Checkpoints()
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := repo.Ensure(ctx, "s-1", domain.CheckpointCheckIn); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if err := repo.MarkArrived(ctx, "s-1", domain.CheckpointCheckIn, domain.RoleTeacher); err != nil {
		t.Fatalf("teacher arrives: %v", err)
	}
	fired, err := repo.TryFire(ctx, "s-1", domain.CheckpointCheckIn, at)
	if err != nil || fired {
		t.Fatalf("expected no fire with one party, fired=%v err=%v", fired, err)
	}

	if err := repo.MarkArrived(ctx, "s-1", domain.CheckpointCheckIn, domain.RoleStudent); err != nil {
		t.Fatalf("student arrives: %v", err)
	}
	fired, err = repo.TryFire(ctx, "s-1", domain.CheckpointCheckIn, at)
	if err != nil || !fired {
		t.Fatalf("expected fire, fired=%v err=%v", fired, err)
	}
	fired, err = repo.TryFire(ctx, "s-1", domain.CheckpointCheckIn, at.Add(time.Minute))
	if err != nil || fired {
		t.Fatalf("expected single fire, fired=%v err=%v", fired, err)
	}

	checkpoint, err := repo.Get(ctx, "s-1", domain.CheckpointCheckIn)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !checkpoint.Fired || checkpoint.FiredAt == nil || !checkpoint.FiredAt.Equal(at) {
		t.Fatalf("unexpected checkpoint: %+v", checkpoint)
	}

	other, err := repo.Get(ctx, "s-1", domain.CheckpointCompletion)
	if err == nil || other != nil {
		t.Fatal("completion checkpoint should not exist yet")
	}
}
