package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/timing"
	"github.com/glebk/skillswap/pkg/validator"
)

// Recorder receives lifecycle counters
type Recorder interface {
	Transition(from, to domain.SessionStatus)
	BarrierFired(kind domain.CheckpointKind)
	ConcurrencyRetry()
	IntegrityFault()
}

type noopRecorder struct{}

func (noopRecorder) Transition(domain.SessionStatus, domain.SessionStatus) {}
func (noopRecorder) BarrierFired(domain.CheckpointKind)                    {}
func (noopRecorder) ConcurrencyRetry()                                     {}
func (noopRecorder) IntegrityFault()                                       {}

// Options configures a SessionService. Only Store is required.
type Options struct {
	Store         domain.Store
	Notifier      domain.Notifier
	Alerter       domain.Alerter
	Validator     *validator.Validator
	Metrics       Recorder
	Logger        logrus.FieldLogger
	Now           func() time.Time
	NewID         func() string
	MaxAttempts   uint
	RetryInterval time.Duration
	NotifyTimeout time.Duration
}

// SessionService runs the session lifecycle: booking, approval with escrow,
// the check-in and completion barriers, cancellation and disputes.
type SessionService struct {
	store         domain.Store
	ledger        *Ledger
	coordinator   Coordinator
	notifier      domain.Notifier
	alerter       domain.Alerter
	validator     *validator.Validator
	metrics       Recorder
	log           logrus.FieldLogger
	now           func() time.Time
	newID         func() string
	maxAttempts   uint
	retryInterval time.Duration
	notifyTimeout time.Duration
}

// NewSessionService creates a new SessionService
func NewSessionService(opts Options) (*SessionService, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session service requires a store")
	}
	s := &SessionService{
		store:         opts.Store,
		notifier:      opts.Notifier,
		alerter:       opts.Alerter,
		validator:     opts.Validator,
		metrics:       opts.Metrics,
		log:           opts.Logger,
		now:           opts.Now,
		newID:         opts.NewID,
		maxAttempts:   opts.MaxAttempts,
		retryInterval: opts.RetryInterval,
		notifyTimeout: opts.NotifyTimeout,
	}
	if s.validator == nil {
		s.validator = validator.NewValidator()
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = 3
	}
	if s.retryInterval <= 0 {
		s.retryInterval = 20 * time.Millisecond
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 5 * time.Second
	}
	s.ledger = NewLedger(s.newID)
	return s, nil
}

// BookSession records a pending request. No credits move until approval.
func (s *SessionService) BookSession(ctx context.Context, terms domain.Terms) (*domain.Session, error) {
	if err := s.validator.Validate(terms); err != nil {
		derr := domain.Wrap(domain.CodeInvalidSessionTerms, err.Error(), err)
		var verr *validator.Error
		if errors.As(err, &verr) {
			derr.Metadata = verr.Fields
		}
		return nil, derr
	}
	if terms.CreditAmount <= 0 {
		return nil, domain.NewError(domain.CodeInvalidSessionTerms, "credit_amount must be positive")
	}

	for _, userID := range []string{terms.TeacherID, terms.StudentID} {
		if _, err := s.store.Accounts().GetByID(ctx, userID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	session := &domain.Session{
		ID:             s.newID(),
		TeacherID:      terms.TeacherID,
		StudentID:      terms.StudentID,
		SkillReference: terms.SkillReference,
		DurationHours:  terms.DurationHours,
		CreditAmount:   terms.CreditAmount,
		Mode:           terms.Mode,
		ScheduledAt:    terms.ScheduledAt,
		Status:         domain.SessionStatusPending,
		CreatedAt:      now,
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to book session: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"op":         "book",
		"session_id": session.ID,
		"teacher_id": session.TeacherID,
		"student_id": session.StudentID,
		"amount":     session.CreditAmount.String(),
	}).Info("session booked")

	s.publish(ctx, s.event(domain.EventSessionStatusChanged, session, "", session.StudentID, ""))
	return session, nil
}

// Approve holds the student's credits in escrow and approves the session
func (s *SessionService) Approve(ctx context.Context, sessionID, actorID string) (*domain.Session, error) {
	return s.mutate(ctx, transition{
		op:        "approve",
		sessionID: sessionID,
		actorID:   actorID,
		apply: func(st *step) error {
			if err := st.session.Require("approve", domain.SessionStatusPending); err != nil {
				return err
			}
			if _, err := s.ledger.Hold(st.ctx, st.repos, st.session, st.now); err != nil {
				return err
			}
			st.session.CreditHeld = true
			return st.transitionTo(domain.SessionStatusApproved)
		},
	})
}

// Reject declines a pending session. No escrow exists yet.
func (s *SessionService) Reject(ctx context.Context, sessionID, actorID, reason string) (*domain.Session, error) {
	return s.mutate(ctx, transition{
		op:        "reject",
		sessionID: sessionID,
		actorID:   actorID,
		reason:    reason,
		apply: func(st *step) error {
			if err := st.session.Require("reject", domain.SessionStatusPending); err != nil {
				return err
			}
			st.session.RejectionReason = reason
			return st.transitionTo(domain.SessionStatusRejected)
		},
	})
}

// CheckIn records the actor's arrival. The second arrival starts the session.
func (s *SessionService) CheckIn(ctx context.Context, sessionID, actorID string) (*domain.Session, error) {
	return s.mutate(ctx, transition{
		op:        "check_in",
		sessionID: sessionID,
		actorID:   actorID,
		apply: func(st *step) error {
			session := st.session
			if session.HasCheckedIn(st.role) &&
				(session.Status == domain.SessionStatusApproved || session.Status == domain.SessionStatusInProgress) {
				return nil
			}
			if err := session.Require("check_in", domain.SessionStatusApproved); err != nil {
				return err
			}

			window := timing.CheckInWindow(session.ScheduledAt)
			if !window.Contains(st.now) {
				return domain.OutOfCheckInWindow(window.UntilOpen(st.now), window.Closed(st.now))
			}

			session.MarkCheckedIn(st.role)
			st.dirty = true

			arrival, err := s.coordinator.Arrive(st.ctx, st.repos.Checkpoints(), session.ID, domain.CheckpointCheckIn, st.role, st.now)
			if err != nil {
				return err
			}
			switch arrival {
			case domain.ArrivalFire:
				st.fired = domain.CheckpointCheckIn
				return st.transitionTo(domain.SessionStatusInProgress)
			case domain.ArrivalAlreadyFired:
				return barrierFault(session, domain.CheckpointCheckIn)
			}
			return nil
		},
	})
}

// ConfirmCompletion records the actor's confirmation. The second confirmation
// pays the teacher and completes the session.
func (s *SessionService) ConfirmCompletion(ctx context.Context, sessionID, actorID string) (*domain.Session, error) {
	return s.mutate(ctx, transition{
		op:        "confirm_completion",
		sessionID: sessionID,
		actorID:   actorID,
		apply: func(st *step) error {
			session := st.session
			if session.HasConfirmed(st.role) &&
				(session.Status == domain.SessionStatusInProgress || session.Status == domain.SessionStatusCompleted) {
				return nil
			}
			if err := session.Require("confirm_completion", domain.SessionStatusInProgress); err != nil {
				return err
			}

			session.MarkConfirmed(st.role)
			st.dirty = true

			arrival, err := s.coordinator.Arrive(st.ctx, st.repos.Checkpoints(), session.ID, domain.CheckpointCompletion, st.role, st.now)
			if err != nil {
				return err
			}
			switch arrival {
			case domain.ArrivalFire:
				st.fired = domain.CheckpointCompletion
				if err := s.releaseEscrow(st); err != nil {
					return err
				}
				return st.transitionTo(domain.SessionStatusCompleted)
			case domain.ArrivalAlreadyFired:
				return barrierFault(session, domain.CheckpointCompletion)
			}
			return nil
		},
	})
}

// Cancel withdraws a pending or approved session and refunds any escrow
func (s *SessionService) Cancel(ctx context.Context, sessionID, actorID, reason string) (*domain.Session, error) {
	return s.mutate(ctx, transition{
		op:        "cancel",
		sessionID: sessionID,
		actorID:   actorID,
		reason:    reason,
		apply: func(st *step) error {
			if err := st.session.Require("cancel", domain.SessionStatusPending, domain.SessionStatusApproved); err != nil {
				return err
			}
			if err := s.refundEscrow(st); err != nil {
				return err
			}
			st.session.CancelReason = reason
			st.session.CancelledBy = st.actorID
			return st.transitionTo(domain.SessionStatusCancelled)
		},
	})
}

// Dispute freezes the session and its escrow until an administrator resolves it
func (s *SessionService) Dispute(ctx context.Context, sessionID, actorID, reason string) (*domain.Session, error) {
	return s.mutate(ctx, transition{
		op:        "dispute",
		sessionID: sessionID,
		actorID:   actorID,
		reason:    reason,
		apply: func(st *step) error {
			if err := st.session.Require("dispute", domain.SessionStatusApproved, domain.SessionStatusInProgress); err != nil {
				return err
			}
			openedAt := st.now
			st.session.DisputeReason = reason
			st.session.DisputeOpenedBy = st.actorID
			st.session.DisputeOpenedAt = &openedAt
			return st.transitionTo(domain.SessionStatusDisputed)
		},
	})
}

// AdminResolve forces the outcome of a disputed session without waiting for
// either party. Callers must have checked that adminID is an administrator.
func (s *SessionService) AdminResolve(ctx context.Context, sessionID, adminID string, resolution domain.Resolution) (*domain.Session, error) {
	if _, err := domain.ParseResolution(string(resolution)); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transition{
		op:        "admin_resolve",
		sessionID: sessionID,
		actorID:   adminID,
		reason:    string(resolution),
		admin:     true,
		apply: func(st *step) error {
			session := st.session
			if err := session.Require("admin_resolve", domain.SessionStatusDisputed); err != nil {
				return err
			}

			var next domain.SessionStatus
			switch resolution {
			case domain.ResolutionComplete:
				if err := s.releaseEscrow(st); err != nil {
					return err
				}
				next = domain.SessionStatusCompleted
			case domain.ResolutionCancel:
				if err := s.refundEscrow(st); err != nil {
					return err
				}
				session.CancelledBy = st.actorID
				session.CancelReason = session.DisputeReason
				next = domain.SessionStatusCancelled
			case domain.ResolutionReject:
				if err := s.refundEscrow(st); err != nil {
					return err
				}
				session.RejectionReason = session.DisputeReason
				next = domain.SessionStatusRejected
			}

			resolvedAt := st.now
			session.DisputeResolution = resolution
			session.DisputeResolvedBy = st.actorID
			session.DisputeResolvedAt = &resolvedAt
			return st.transitionTo(next)
		},
	})
}

// Get returns a session without an access check
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.store.Sessions().GetByID(ctx, sessionID)
}

// GetForActor returns a session if actorID takes part in it
func (s *SessionService) GetForActor(ctx context.Context, sessionID, actorID string) (*domain.Session, error) {
	session, err := s.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := session.RoleOf(actorID); err != nil {
		return nil, err
	}
	return session, nil
}

// ListForUser returns the sessions userID takes part in, newest first
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.store.Sessions().ListByParticipant(ctx, userID)
}

// SessionProgress is a live view of a session's timing
type SessionProgress struct {
	Session  *domain.Session
	Progress timing.Progress
}

// Progress measures how far along the session is. A completed session is
// measured up to its completion time.
func (s *SessionService) Progress(ctx context.Context, sessionID, actorID string) (*SessionProgress, error) {
	session, err := s.GetForActor(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	end := s.now()
	if session.CompletedAt != nil {
		end = *session.CompletedAt
	}
	return &SessionProgress{
		Session:  session,
		Progress: timing.Measure(session.StartedAt, end, session.DurationHours),
	}, nil
}

func (s *SessionService) releaseEscrow(st *step) error {
	if !st.session.CreditHeld {
		return domain.WithMetadata(domain.CodeEscrowInconsistency, "session has no held credit to release", map[string]string{
			"session_id": st.session.ID,
		})
	}
	if _, err := s.ledger.Release(st.ctx, st.repos, st.session.ID, st.now); err != nil {
		return err
	}
	st.session.CreditHeld = false
	return nil
}

func (s *SessionService) refundEscrow(st *step) error {
	if !st.session.CreditHeld {
		return nil
	}
	if _, err := s.ledger.Refund(st.ctx, st.repos, st.session.ID, st.now); err != nil {
		return err
	}
	st.session.CreditHeld = false
	return nil
}

func barrierFault(session *domain.Session, kind domain.CheckpointKind) error {
	return domain.WithMetadata(domain.CodeEscrowInconsistency, fmt.Sprintf("%s checkpoint fired but session is still %s", kind, session.Status), map[string]string{
		"session_id": session.ID,
		"checkpoint": string(kind),
		"status":     string(session.Status),
	})
}
