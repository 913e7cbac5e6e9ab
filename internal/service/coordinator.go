package service

import (
	"context"
	"time"

	"github.com/glebk/skillswap/internal/domain"
)

// Coordinator is a two-party barrier kept entirely in the store. Fire is
// decided by a conditional update, so racing arrivals on different server
// instances still see exactly one Fire.
type Coordinator struct{}

// Arrive records role at the checkpoint and reports what the caller observed.
func (Coordinator) Arrive(ctx context.Context, checkpoints domain.CheckpointRepository, sessionID string, kind domain.CheckpointKind, role domain.Role, now time.Time) (domain.Arrival, error) {
	if err := checkpoints.Ensure(ctx, sessionID, kind); err != nil {
		return domain.ArrivalWait, err
	}
	if err := checkpoints.MarkArrived(ctx, sessionID, kind, role); err != nil {
		return domain.ArrivalWait, err
	}

	fired, err := checkpoints.TryFire(ctx, sessionID, kind, now)
	if err != nil {
		return domain.ArrivalWait, err
	}
	if fired {
		return domain.ArrivalFire, nil
	}

	checkpoint, err := checkpoints.Get(ctx, sessionID, kind)
	if err != nil {
		return domain.ArrivalWait, err
	}
	if checkpoint.Fired {
		return domain.ArrivalAlreadyFired, nil
	}
	return domain.ArrivalWait, nil
}
