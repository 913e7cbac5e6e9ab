// Package timing holds the pure time rules of a session: when check-in is
// allowed and how far along a running session is. It knows nothing about
// storage or balances.
package timing

import "time"

// CheckInTolerance is how far either side of the scheduled start a
// participant may check in.
const CheckInTolerance = 15 * time.Minute

// Window is the interval in which check-in is accepted. An unbounded
// window accepts any instant.
type Window struct {
	Opens   time.Time
	Closes  time.Time
	Bounded bool
}

// CheckInWindow returns [scheduledAt - 15m, scheduledAt + 15m], or an
// unbounded window when the session has no schedule.
func CheckInWindow(scheduledAt *time.Time) Window {
	if scheduledAt == nil {
		return Window{}
	}
	return Window{
		Opens:   scheduledAt.Add(-CheckInTolerance),
		Closes:  scheduledAt.Add(CheckInTolerance),
		Bounded: true,
	}
}

// Contains reports whether t is inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	if !w.Bounded {
		return true
	}
	return !t.Before(w.Opens) && !t.After(w.Closes)
}

// UntilOpen is the wait before the window opens; zero once it has opened.
func (w Window) UntilOpen(t time.Time) time.Duration {
	if !w.Bounded || !t.Before(w.Opens) {
		return 0
	}
	return w.Opens.Sub(t)
}

// Closed reports whether the window has already ended at t.
func (w Window) Closed(t time.Time) bool {
	return w.Bounded && t.After(w.Closes)
}

// Elapsed is now - startedAt.
func Elapsed(startedAt, now time.Time) time.Duration {
	return now.Sub(startedAt)
}

// PlannedSeconds converts the booked duration to seconds.
func PlannedSeconds(durationHours float64) float64 {
	return durationHours * 3600
}

// PlannedDuration converts the booked duration to a time.Duration.
func PlannedDuration(durationHours float64) time.Duration {
	return time.Duration(PlannedSeconds(durationHours) * float64(time.Second))
}

// IsOvertime reports whether the session ran past its planned duration.
func IsOvertime(startedAt, now time.Time, durationHours float64) bool {
	return Elapsed(startedAt, now).Seconds() > PlannedSeconds(durationHours)
}

// ProgressPercent is elapsed/planned capped at 1.0, so 0.5 means halfway.
func ProgressPercent(startedAt, now time.Time, durationHours float64) float64 {
	planned := PlannedSeconds(durationHours)
	if planned <= 0 {
		return 1
	}
	ratio := Elapsed(startedAt, now).Seconds() / planned
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}

// Progress is a read-only snapshot for live indicators.
type Progress struct {
	Started    bool
	Elapsed    time.Duration
	Planned    time.Duration
	Percent    float64
	Overtime   bool
	OvertimeBy time.Duration
}

// Measure builds a Progress snapshot. A session that has not started
// reports zero elapsed time.
func Measure(startedAt *time.Time, now time.Time, durationHours float64) Progress {
	progress := Progress{Planned: PlannedDuration(durationHours)}
	if startedAt == nil {
		return progress
	}
	progress.Started = true
	progress.Elapsed = Elapsed(*startedAt, now)
	if progress.Elapsed < 0 {
		progress.Elapsed = 0
	}
	progress.Percent = ProgressPercent(*startedAt, now, durationHours)
	progress.Overtime = IsOvertime(*startedAt, now, durationHours)
	if progress.Overtime {
		progress.OvertimeBy = progress.Elapsed - progress.Planned
	}
	return progress
}
