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

// CheckpointRepository implements domain.CheckpointRepository using SQLite
type CheckpointRepository struct {
	q sqlx.ExtContext
}

type checkpointRow struct {
	SessionID      string        `db:"session_id"`
	Kind           string        `db:"kind"`
	TeacherArrived int           `db:"teacher_arrived"`
	StudentArrived int           `db:"student_arrived"`
	Fired          int           `db:"fired"`
	FiredAt        sql.NullInt64 `db:"fired_at"`
}

// Ensure creates the checkpoint row if it does not exist yet
func (r *CheckpointRepository) Ensure(ctx context.Context, sessionID string, kind domain.CheckpointKind) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO checkpoints (session_id, kind) VALUES (?, ?)
	`, sessionID, string(kind))
	if err != nil {
		return storeError(fmt.Errorf("failed to ensure checkpoint: %w", err))
	}
	return nil
}

// MarkArrived records that the party playing role reached the checkpoint
func (r *CheckpointRepository) MarkArrived(ctx context.Context, sessionID string, kind domain.CheckpointKind, role domain.Role) error {
	column := "student_arrived"
	if role == domain.RoleTeacher {
		column = "teacher_arrived"
	}
	result, err := r.q.ExecContext(ctx,
		`UPDATE checkpoints SET `+column+` = 1 WHERE session_id = ? AND kind = ?`,
		sessionID, string(kind),
	)
	if err != nil {
		return storeError(fmt.Errorf("failed to mark arrival: %w", err))
	}
	return requireRow(result, domain.WithMetadata(domain.CodeNotFound, "checkpoint not found", map[string]string{
		"session_id": sessionID,
		"kind":       string(kind),
	}))
}

// TryFire sets fired when both parties arrived. Only the first caller sees true.
func (r *CheckpointRepository) TryFire(ctx context.Context, sessionID string, kind domain.CheckpointKind, at time.Time) (bool, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE checkpoints SET fired = 1, fired_at = ?
		WHERE session_id = ? AND kind = ?
			AND teacher_arrived = 1 AND student_arrived = 1 AND fired = 0
	`, toMillis(at), sessionID, string(kind))
	if err != nil {
		return false, storeError(fmt.Errorf("failed to fire checkpoint: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read fire result: %w", err)
	}
	return affected == 1, nil
}

// Get retrieves a checkpoint
func (r *CheckpointRepository) Get(ctx context.Context, sessionID string, kind domain.CheckpointKind) (*domain.Checkpoint, error) {
	var row checkpointRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT session_id, kind, teacher_arrived, student_arrived, fired, fired_at
		FROM checkpoints
		WHERE session_id = ? AND kind = ?
	`, sessionID, string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WithMetadata(domain.CodeNotFound, "checkpoint not found", map[string]string{
			"session_id": sessionID,
			"kind":       string(kind),
		})
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to get checkpoint: %w", err))
	}
	return &domain.Checkpoint{
		SessionID:      row.SessionID,
		Kind:           domain.CheckpointKind(row.Kind),
		TeacherArrived: row.TeacherArrived != 0,
		StudentArrived: row.StudentArrived != 0,
		Fired:          row.Fired != 0,
		FiredAt:        optionalTime(row.FiredAt),
	}, nil
}
