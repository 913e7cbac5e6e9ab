package domain

import (
	"context"
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle status of a session
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusApproved   SessionStatus = "approved"
	SessionStatusRejected   SessionStatus = "rejected"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
	SessionStatusDisputed   SessionStatus = "disputed"
)

// sessionTransitions is the only place the lifecycle graph is defined.
// Statuses without an entry are terminal.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPending:    {SessionStatusApproved, SessionStatusRejected, SessionStatusCancelled},
	SessionStatusApproved:   {SessionStatusInProgress, SessionStatusCancelled, SessionStatusDisputed},
	SessionStatusInProgress: {SessionStatusCompleted, SessionStatusDisputed},
	SessionStatusDisputed:   {SessionStatusCompleted, SessionStatusCancelled, SessionStatusRejected},
}

// ParseSessionStatus validates a stored or user-supplied status.
func ParseSessionStatus(value string) (SessionStatus, error) {
	status := SessionStatus(value)
	switch status {
	case SessionStatusPending, SessionStatusApproved, SessionStatusRejected, SessionStatusInProgress,
		SessionStatusCompleted, SessionStatusCancelled, SessionStatusDisputed:
		return status, nil
	}
	return "", fmt.Errorf("unknown session status %q", value)
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, candidate := range sessionTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s SessionStatus) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// Mode is how the session is delivered
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
	ModeHybrid  Mode = "hybrid"
)

// Role is the side a participant plays in a session
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Resolution is the outcome an administrator forces on a disputed session
type Resolution string

const (
	ResolutionComplete Resolution = "complete"
	ResolutionCancel   Resolution = "cancel"
	ResolutionReject   Resolution = "reject"
)

// ParseResolution validates an administrator resolution.
func ParseResolution(value string) (Resolution, error) {
	resolution := Resolution(value)
	switch resolution {
	case ResolutionComplete, ResolutionCancel, ResolutionReject:
		return resolution, nil
	}
	return "", NewError(CodeInvalidInput, fmt.Sprintf("unknown resolution %q", value))
}

// Terms are the booking parameters agreed between the two parties
type Terms struct {
	TeacherID      string     `json:"teacher_id" validate:"required"`
	StudentID      string     `json:"student_id" validate:"required,nefield=TeacherID"`
	SkillReference string     `json:"skill_reference" validate:"required"`
	DurationHours  float64    `json:"duration_hours" validate:"gt=0"`
	CreditAmount   Credits    `json:"credit_amount" validate:"gt=0"`
	Mode           Mode       `json:"mode" validate:"required,oneof=online offline hybrid"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

// Session represents a scheduled exchange between a teacher and a student
type Session struct {
	ID             string
	TeacherID      string
	StudentID      string
	SkillReference string
	DurationHours  float64
	CreditAmount   Credits
	Mode           Mode
	ScheduledAt    *time.Time
	Status         SessionStatus

	TeacherCheckedIn bool
	StudentCheckedIn bool
	TeacherConfirmed bool
	StudentConfirmed bool

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreditHeld  bool

	RejectionReason string
	CancelReason    string
	CancelledBy     string

	DisputeReason     string
	DisputeOpenedBy   string
	DisputeOpenedAt   *time.Time
	DisputeResolution Resolution
	DisputeResolvedBy string
	DisputeResolvedAt *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleOf returns the role actorID plays, or ErrNotParticipant.
func (s *Session) RoleOf(actorID string) (Role, error) {
	switch {
	case actorID == "":
	case actorID == s.TeacherID:
		return RoleTeacher, nil
	case actorID == s.StudentID:
		return RoleStudent, nil
	}
	return "", WithMetadata(CodeNotParticipant, "actor is not a participant of session "+s.ID, map[string]string{
		"session_id": s.ID,
		"actor_id":   actorID,
	})
}

// HasCheckedIn reports the check-in flag for role.
func (s *Session) HasCheckedIn(role Role) bool {
	if role == RoleTeacher {
		return s.TeacherCheckedIn
	}
	return s.StudentCheckedIn
}

// MarkCheckedIn sets the check-in flag for role. Flags never reset.
func (s *Session) MarkCheckedIn(role Role) {
	if role == RoleTeacher {
		s.TeacherCheckedIn = true
		return
	}
	s.StudentCheckedIn = true
}

// HasConfirmed reports the completion flag for role.
func (s *Session) HasConfirmed(role Role) bool {
	if role == RoleTeacher {
		return s.TeacherConfirmed
	}
	return s.StudentConfirmed
}

// MarkConfirmed sets the completion flag for role. Flags never reset.
func (s *Session) MarkConfirmed(role Role) {
	if role == RoleTeacher {
		s.TeacherConfirmed = true
		return
	}
	s.StudentConfirmed = true
}

// Require fails with InvalidTransition unless the session is in one of allowed.
func (s *Session) Require(op string, allowed ...SessionStatus) error {
	for _, status := range allowed {
		if s.Status == status {
			return nil
		}
	}
	return InvalidTransition(op, s.Status)
}

// TransitionTo moves the session to next, stamping the write-once
// timestamps that belong to the target status.
func (s *Session) TransitionTo(next SessionStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return InvalidTransition("transition to "+string(next), s.Status)
	}
	switch next {
	case SessionStatusInProgress:
		if s.StartedAt == nil {
			started := now
			s.StartedAt = &started
		}
	case SessionStatusCompleted:
		if s.CompletedAt == nil {
			completed := now
			s.CompletedAt = &completed
		}
	}
	s.Status = next
	return nil
}

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	// Update persists session only if its stored version still equals
	// session.Version, then increments session.Version.
	Update(ctx context.Context, session *Session) error
	ListByParticipant(ctx context.Context, userID string) ([]*Session, error)
}
