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

// SessionRepository implements domain.SessionRepository using SQLite
type SessionRepository struct {
	q sqlx.ExtContext
}

const sessionColumns = `id, teacher_id, student_id, skill_reference, duration_hours, credit_amount, mode,
	scheduled_at, status, teacher_checked_in, student_checked_in, teacher_confirmed, student_confirmed,
	started_at, completed_at, credit_held, rejection_reason, cancel_reason, cancelled_by,
	dispute_reason, dispute_opened_by, dispute_opened_at, dispute_resolution, dispute_resolved_by,
	dispute_resolved_at, version, created_at, updated_at`

type sessionRow struct {
	ID                string        `db:"id"`
	TeacherID         string        `db:"teacher_id"`
	StudentID         string        `db:"student_id"`
	SkillReference    string        `db:"skill_reference"`
	DurationHours     float64       `db:"duration_hours"`
	CreditAmount      int64         `db:"credit_amount"`
	Mode              string        `db:"mode"`
	ScheduledAt       sql.NullInt64 `db:"scheduled_at"`
	Status            string        `db:"status"`
	TeacherCheckedIn  int           `db:"teacher_checked_in"`
	StudentCheckedIn  int           `db:"student_checked_in"`
	TeacherConfirmed  int           `db:"teacher_confirmed"`
	StudentConfirmed  int           `db:"student_confirmed"`
	StartedAt         sql.NullInt64 `db:"started_at"`
	CompletedAt       sql.NullInt64 `db:"completed_at"`
	CreditHeld        int           `db:"credit_held"`
	RejectionReason   string        `db:"rejection_reason"`
	CancelReason      string        `db:"cancel_reason"`
	CancelledBy       string        `db:"cancelled_by"`
	DisputeReason     string        `db:"dispute_reason"`
	DisputeOpenedBy   string        `db:"dispute_opened_by"`
	DisputeOpenedAt   sql.NullInt64 `db:"dispute_opened_at"`
	DisputeResolution string        `db:"dispute_resolution"`
	DisputeResolvedBy string        `db:"dispute_resolved_by"`
	DisputeResolvedAt sql.NullInt64 `db:"dispute_resolved_at"`
	Version           int64         `db:"version"`
	CreatedAt         int64         `db:"created_at"`
	UpdatedAt         int64         `db:"updated_at"`
}

func (row sessionRow) toDomain() (*domain.Session, error) {
	status, err := domain.ParseSessionStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", row.ID, err)
	}
	return &domain.Session{
		ID:                row.ID,
		TeacherID:         row.TeacherID,
		StudentID:         row.StudentID,
		SkillReference:    row.SkillReference,
		DurationHours:     row.DurationHours,
		CreditAmount:      domain.Credits(row.CreditAmount),
		Mode:              domain.Mode(row.Mode),
		ScheduledAt:       optionalTime(row.ScheduledAt),
		Status:            status,
		TeacherCheckedIn:  row.TeacherCheckedIn != 0,
		StudentCheckedIn:  row.StudentCheckedIn != 0,
		TeacherConfirmed:  row.TeacherConfirmed != 0,
		StudentConfirmed:  row.StudentConfirmed != 0,
		StartedAt:         optionalTime(row.StartedAt),
		CompletedAt:       optionalTime(row.CompletedAt),
		CreditHeld:        row.CreditHeld != 0,
		RejectionReason:   row.RejectionReason,
		CancelReason:      row.CancelReason,
		CancelledBy:       row.CancelledBy,
		DisputeReason:     row.DisputeReason,
		DisputeOpenedBy:   row.DisputeOpenedBy,
		DisputeOpenedAt:   optionalTime(row.DisputeOpenedAt),
		DisputeResolution: domain.Resolution(row.DisputeResolution),
		DisputeResolvedBy: row.DisputeResolvedBy,
		DisputeResolvedAt: optionalTime(row.DisputeResolvedAt),
		Version:           row.Version,
		CreatedAt:         fromMillis(row.CreatedAt),
		UpdatedAt:         fromMillis(row.UpdatedAt),
	}, nil
}

func optionalTime(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Create inserts a new session at version 1
func (r *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	session.UpdatedAt = session.CreatedAt
	session.Version = 1

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		session.ID,
		session.TeacherID,
		session.StudentID,
		session.SkillReference,
		session.DurationHours,
		int64(session.CreditAmount),
		string(session.Mode),
		nullableMillis(session.ScheduledAt),
		string(session.Status),
		boolToInt(session.TeacherCheckedIn),
		boolToInt(session.StudentCheckedIn),
		boolToInt(session.TeacherConfirmed),
		boolToInt(session.StudentConfirmed),
		nullableMillis(session.StartedAt),
		nullableMillis(session.CompletedAt),
		boolToInt(session.CreditHeld),
		session.RejectionReason,
		session.CancelReason,
		session.CancelledBy,
		session.DisputeReason,
		session.DisputeOpenedBy,
		nullableMillis(session.DisputeOpenedAt),
		string(session.DisputeResolution),
		session.DisputeResolvedBy,
		nullableMillis(session.DisputeResolvedAt),
		session.Version,
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	)
	if err != nil {
		return storeError(fmt.Errorf("failed to create session: %w", err))
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WithMetadata(domain.CodeNotFound, "session not found", map[string]string{"session_id": id})
	}
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to get session: %w", err))
	}
	return row.toDomain()
}

// Update writes session if nobody else changed it since it was read.
// Participant flags only ever go from 0 to 1 and the start and completion
// timestamps keep their first value.
func (r *SessionRepository) Update(ctx context.Context, session *domain.Session) error {
	now := time.Now().UTC()
	query := `
		UPDATE sessions
		SET status = ?,
			teacher_checked_in = teacher_checked_in | ?,
			student_checked_in = student_checked_in | ?,
			teacher_confirmed = teacher_confirmed | ?,
			student_confirmed = student_confirmed | ?,
			started_at = COALESCE(started_at, ?),
			completed_at = COALESCE(completed_at, ?),
			credit_held = ?,
			rejection_reason = ?,
			cancel_reason = ?,
			cancelled_by = ?,
			dispute_reason = ?,
			dispute_opened_by = ?,
			dispute_opened_at = ?,
			dispute_resolution = ?,
			dispute_resolved_by = ?,
			dispute_resolved_at = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		string(session.Status),
		boolToInt(session.TeacherCheckedIn),
		boolToInt(session.StudentCheckedIn),
		boolToInt(session.TeacherConfirmed),
		boolToInt(session.StudentConfirmed),
		nullableMillis(session.StartedAt),
		nullableMillis(session.CompletedAt),
		boolToInt(session.CreditHeld),
		session.RejectionReason,
		session.CancelReason,
		session.CancelledBy,
		session.DisputeReason,
		session.DisputeOpenedBy,
		nullableMillis(session.DisputeOpenedAt),
		string(session.DisputeResolution),
		session.DisputeResolvedBy,
		nullableMillis(session.DisputeResolvedAt),
		toMillis(now),
		session.ID,
		session.Version,
	)
	if err != nil {
		return storeError(fmt.Errorf("failed to update session: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return domain.WithMetadata(domain.CodeConcurrentModification, "session was modified concurrently", map[string]string{
			"session_id": session.ID,
		})
	}
	session.Version++
	session.UpdatedAt = now
	return nil
}

// ListByParticipant returns sessions where userID is teacher or student, newest first
func (r *SessionRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.Session, error) {
	var rows []sessionRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE teacher_id = ? OR student_id = ?
		ORDER BY created_at DESC, id
	`, userID, userID)
	if err != nil {
		return nil, storeError(fmt.Errorf("failed to list sessions: %w", err))
	}

	sessions := make([]*domain.Session, 0, len(rows))
	for _, row := range rows {
		session, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
