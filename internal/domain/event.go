package domain

import (
	"context"
	"time"
)

// EventType identifies a lifecycle notification
type EventType string

const (
	EventSessionStatusChanged EventType = "session.status_changed"
	EventSessionCompleted     EventType = "session.completed"
)

// Event is published after a lifecycle transition commits
type Event struct {
	ID         string        `json:"id"`
	Type       EventType     `json:"type"`
	SessionID  string        `json:"session_id"`
	TeacherID  string        `json:"teacher_id"`
	StudentID  string        `json:"student_id"`
	From       SessionStatus `json:"from,omitempty"`
	To         SessionStatus `json:"to"`
	ActorID    string        `json:"actor_id,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Amount     Credits       `json:"amount"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Notifier delivers events. Delivery is best effort: a failing notifier
// never affects the transition that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Alerter reaches a human operator about integrity faults.
type Alerter interface {
	Alert(ctx context.Context, message string) error
}
