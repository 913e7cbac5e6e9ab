package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/domain"
)

// transition describes one lifecycle operation on a stored session
type transition struct {
	op        string
	sessionID string
	actorID   string
	reason    string
	admin     bool
	apply     func(st *step) error
}

// step is the state of one attempt of a transition inside its unit of work
type step struct {
	ctx     context.Context
	repos   domain.Repositories
	session *domain.Session
	role    domain.Role
	actorID string
	now     time.Time
	dirty   bool
	fired   domain.CheckpointKind
}

func (st *step) transitionTo(next domain.SessionStatus) error {
	if err := st.session.TransitionTo(next, st.now); err != nil {
		return err
	}
	st.dirty = true
	return nil
}

type committed struct {
	session *domain.Session
	from    domain.SessionStatus
	fired   domain.CheckpointKind
}

// mutate runs t in its own transaction and commits the session with a
// version check. ConcurrentModification restarts the whole attempt from a
// fresh read; every other error is final. Events go out only after commit.
func (s *SessionService) mutate(ctx context.Context, t transition) (*domain.Session, error) {
	log := s.log.WithFields(logrus.Fields{
		"op":         t.op,
		"session_id": t.sessionID,
		"actor_id":   t.actorID,
	})

	attempt := func() (committed, error) {
		var result committed
		err := s.store.WithTx(ctx, func(repos domain.Repositories) error {
			session, err := repos.Sessions().GetByID(ctx, t.sessionID)
			if err != nil {
				return err
			}
			st := &step{
				ctx:     ctx,
				repos:   repos,
				session: session,
				actorID: t.actorID,
				now:     s.now(),
			}
			if !t.admin {
				if st.role, err = session.RoleOf(t.actorID); err != nil {
					return err
				}
			}

			from := session.Status
			if err := t.apply(st); err != nil {
				return err
			}
			if st.dirty {
				if err := repos.Sessions().Update(ctx, session); err != nil {
					return err
				}
			}
			result = committed{session: session, from: from, fired: st.fired}
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				return committed{}, err
			}
			return committed{}, backoff.Permanent(err)
		}
		return result, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxInterval = 10 * s.retryInterval

	result, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.metrics.ConcurrencyRetry()
			log.WithError(err).WithField("retry_in", wait).Debug("retrying after concurrent modification")
		}),
	)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowInconsistency) {
			s.integrityFault(ctx, log, t, err)
		}
		return nil, err
	}

	session := result.session
	if result.fired != "" {
		s.metrics.BarrierFired(result.fired)
	}
	if result.from == session.Status {
		return session, nil
	}

	s.metrics.Transition(result.from, session.Status)
	log.WithFields(logrus.Fields{
		"from": result.from,
		"to":   session.Status,
	}).Info("session transition")

	events := []domain.Event{s.event(domain.EventSessionStatusChanged, session, result.from, t.actorID, t.reason)}
	if session.Status == domain.SessionStatusCompleted {
		events = append(events, s.event(domain.EventSessionCompleted, session, result.from, t.actorID, t.reason))
	}
	s.publish(ctx, events...)
	return session, nil
}

func (s *SessionService) event(eventType domain.EventType, session *domain.Session, from domain.SessionStatus, actorID, reason string) domain.Event {
	return domain.Event{
		ID:         s.newID(),
		Type:       eventType,
		SessionID:  session.ID,
		TeacherID:  session.TeacherID,
		StudentID:  session.StudentID,
		From:       from,
		To:         session.Status,
		ActorID:    actorID,
		Reason:     reason,
		Amount:     session.CreditAmount,
		OccurredAt: s.now(),
	}
}

// publish delivers events on a context detached from the request, so a
// client hanging up does not cut off notifications for a committed change.
func (s *SessionService) publish(ctx context.Context, events ...domain.Event) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	for _, event := range events {
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"event":      event.Type,
				"session_id": event.SessionID,
			}).Warn("failed to deliver session event")
		}
	}
}

func (s *SessionService) integrityFault(ctx context.Context, log logrus.FieldLogger, t transition, err error) {
	s.metrics.IntegrityFault()
	log.WithError(err).WithField("integrity_fault", true).Error("escrow inconsistency, operation aborted")

	if s.alerter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	message := fmt.Sprintf("Integrity fault during %s on session %s: %v", t.op, t.sessionID, err)
	if alertErr := s.alerter.Alert(ctx, message); alertErr != nil {
		log.WithError(alertErr).Warn("failed to alert operator")
	}
}
