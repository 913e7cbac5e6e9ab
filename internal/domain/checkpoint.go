package domain

import (
	"context"
	"time"
)

// CheckpointKind names a two-party barrier within a session
type CheckpointKind string

const (
	CheckpointCheckIn    CheckpointKind = "checkin"
	CheckpointCompletion CheckpointKind = "completion"
)

// Arrival is what a party observes after arriving at a checkpoint
type Arrival int

const (
	// ArrivalWait means the other party has not arrived yet.
	ArrivalWait Arrival = iota
	// ArrivalFire means this arrival completed the barrier. Exactly one
	// arrival per checkpoint observes it.
	ArrivalFire
	// ArrivalAlreadyFired means the barrier fired on an earlier arrival.
	ArrivalAlreadyFired
)

func (a Arrival) String() string {
	switch a {
	case ArrivalFire:
		return "fire"
	case ArrivalAlreadyFired:
		return "already-fired"
	default:
		return "wait"
	}
}

// Checkpoint is the durable state of one barrier
type Checkpoint struct {
	SessionID      string
	Kind           CheckpointKind
	TeacherArrived bool
	StudentArrived bool
	Fired          bool
	FiredAt        *time.Time
}

// CheckpointRepository defines the conditional writes a barrier is built from
type CheckpointRepository interface {
	Ensure(ctx context.Context, sessionID string, kind CheckpointKind) error
	MarkArrived(ctx context.Context, sessionID string, kind CheckpointKind, role Role) error
	// TryFire sets fired only if both parties arrived and it was not fired
	// yet; it reports whether this call did it.
	TryFire(ctx context.Context, sessionID string, kind CheckpointKind, at time.Time) (bool, error)
	Get(ctx context.Context, sessionID string, kind CheckpointKind) (*Checkpoint, error)
}
