package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/repository/sqlite"
)

var scheduledAt = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) count(eventType domain.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, event := range n.events {
		if event.Type == eventType {
			total++
		}
	}
	return total
}

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAlerter) Alert(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
	return nil
}

type countingRecorder struct {
	transitions atomic.Int64
	fires       atomic.Int64
	retries     atomic.Int64
	faults      atomic.Int64
}

func (r *countingRecorder) Transition(domain.SessionStatus, domain.SessionStatus) { r.transitions.Add(1) }
func (r *countingRecorder) BarrierFired(domain.CheckpointKind)                    { r.fires.Add(1) }
func (r *countingRecorder) ConcurrencyRetry()                                     { r.retries.Add(1) }
func (r *countingRecorder) IntegrityFault()                                       { r.faults.Add(1) }

// flakyStore fails the first n units of work with a version conflict.
type flakyStore struct {
	domain.Store
	failures atomic.Int32
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(domain.Repositories) error) error {
	if f.failures.Add(-1) >= 0 {
		return domain.ErrConcurrentModification
	}
	return f.Store.WithTx(ctx, fn)
}

type harness struct {
	db       *sqlite.Database
	clock    *fakeClock
	notifier *recordingNotifier
	alerter  *recordingAlerter
	metrics  *countingRecorder
	accounts *AccountService
	sessions *SessionService
}

const signupGrant = domain.Credits(500)

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "skillswap.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return newHarnessWithStore(t, db, db)
}

func newHarnessWithStore(t *testing.T, db *sqlite.Database, store domain.Store) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		db:       db,
		clock:    &fakeClock{now: scheduledAt.Add(-24 * time.Hour)},
		notifier: &recordingNotifier{},
		alerter:  &recordingAlerter{},
		metrics:  &countingRecorder{},
		accounts: NewAccountService(db, signupGrant, logger),
	}
	h.accounts.now = h.clock.Now
	sessions, err := NewSessionService(Options{
		Store:         store,
		Notifier:      h.notifier,
		Alerter:       h.alerter,
		Metrics:       h.metrics,
		Logger:        logger,
		Now:           h.clock.Now,
		MaxAttempts:   3,
		RetryInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new session service: %v", err)
	}
	h.sessions = sessions

	for _, user := range []string{"teacher", "student", "outsider"} {
		if _, _, err := h.accounts.OpenAccount(context.Background(), user); err != nil {
			t.Fatalf("open account %s: %v", user, err)
		}
	}
	return h
}

func (h *harness) book(t *testing.T, hours float64, amount domain.Credits) *domain.Session {
	t.Helper()
	scheduled := scheduledAt
	session, err := h.sessions.BookSession(context.Background(), domain.Terms{
		TeacherID:      "teacher",
		StudentID:      "student",
		SkillReference: "guitar-101",
		DurationHours:  hours,
		CreditAmount:   amount,
		Mode:           domain.ModeOnline,
		ScheduledAt:    &scheduled,
	})
	if err != nil {
		t.Fatalf("book session: %v", err)
	}
	return session
}

func (h *harness) balance(t *testing.T, userID string) *domain.Account {
	t.Helper()
	account, err := h.accounts.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance %s: %v", userID, err)
	}
	return account
}

func (h *harness) assertBalance(t *testing.T, userID string, available, held domain.Credits) {
	t.Helper()
	account := h.balance(t, userID)
	if account.Available != available || account.Held != held {
		t.Fatalf("%s: available=%s held=%s, want available=%s held=%s",
			userID, account.Available, account.Held, available, held)
	}
}

// assertConserved checks that session operations never create or destroy credit.
func (h *harness) assertConserved(t *testing.T) {
	t.Helper()
	var total domain.Credits
	for _, user := range []string{"teacher", "student", "outsider"} {
		total += h.balance(t, user).Total()
	}
	if want := 3 * signupGrant; total != want {
		t.Fatalf("total credits %s, want %s", total, want)
	}
}

func (h *harness) status(t *testing.T, sessionID string) domain.SessionStatus {
	t.Helper()
	session, err := h.sessions.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return session.Status
}

func assertCode(t *testing.T, err error, target *domain.Error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %s, got %v", target.Code, err)
	}
}
