// Package notify delivers session events to the outside world. Every sink is
// best effort; callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/domain"
)

type sink struct {
	name     string
	notifier domain.Notifier
}

// Fanout forwards each event to every registered notifier
type Fanout struct {
	mu    sync.RWMutex
	sinks []sink
}

// NewFanout creates an empty Fanout
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a notifier under name
func (f *Fanout) Add(name string, notifier domain.Notifier) {
	if notifier == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink{name: name, notifier: notifier})
}

// Len reports the number of sinks
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// Notify delivers event to all sinks, even when some of them fail
func (f *Fanout) Notify(ctx context.Context, event domain.Event) error {
	f.mu.RLock()
	sinks := append([]sink(nil), f.sinks...)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a logger
type Log struct {
	log logrus.FieldLogger
}

// NewLog creates a Log notifier
func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, event domain.Event) error {
	l.log.WithFields(logrus.Fields{
		"event":      event.Type,
		"event_id":   event.ID,
		"session_id": event.SessionID,
		"from":       event.From,
		"to":         event.To,
		"actor_id":   event.ActorID,
	}).Info("session event")
	return nil
}

// Relay forwards operator alerts to an alerter attached after start-up.
// Alerts raised before Attach are dropped; the service logs them anyway.
type Relay struct {
	mu      sync.RWMutex
	alerter domain.Alerter
}

// Attach sets the alerter that receives subsequent alerts
func (r *Relay) Attach(alerter domain.Alerter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerter = alerter
}

func (r *Relay) Alert(ctx context.Context, message string) error {
	r.mu.RLock()
	alerter := r.alerter
	r.mu.RUnlock()
	if alerter == nil {
		return nil
	}
	return alerter.Alert(ctx, message)
}
