package timing

import (
	"testing"
	"time"
)

func TestCheckInWindowBounds(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	window := CheckInWindow(&scheduled)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"two hours early", scheduled.Add(-2 * time.Hour), false},
		{"ten minutes early", scheduled.Add(-10 * time.Minute), true},
		{"opening instant", scheduled.Add(-15 * time.Minute), true},
		{"just before opening", scheduled.Add(-15*time.Minute - time.Second), false},
		{"on time", scheduled, true},
		{"closing instant", scheduled.Add(15 * time.Minute), true},
		{"just after closing", scheduled.Add(15*time.Minute + time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := window.Contains(tc.at); got != tc.want {
				t.Fatalf("Contains(%s) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestCheckInWindowUnscheduled(t *testing.T) {
	window := CheckInWindow(nil)
	if window.Bounded {
		t.Fatal("expected unbounded window")
	}
	if !window.Contains(time.Time{}) || !window.Contains(time.Now().Add(1000*time.Hour)) {
		t.Fatal("expected unbounded window to contain any instant")
	}
	if window.UntilOpen(time.Now()) != 0 || window.Closed(time.Now()) {
		t.Fatal("expected unbounded window to be open")
	}
}

func TestWindowUntilOpenAndClosed(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	window := CheckInWindow(&scheduled)

	if got := window.UntilOpen(scheduled.Add(-2 * time.Hour)); got != 105*time.Minute {
		t.Fatalf("expected 105m until open, got %s", got)
	}
	if got := window.UntilOpen(scheduled); got != 0 {
		t.Fatalf("expected open window, got %s", got)
	}
	if !window.Closed(scheduled.Add(time.Hour)) {
		t.Fatal("expected window to be closed an hour after start")
	}
	if window.Closed(scheduled) {
		t.Fatal("expected window to be open at start")
	}
}

func TestPlannedSecondsAllowsPartialHours(t *testing.T) {
	if got := PlannedSeconds(1.5); got != 5400 {
		t.Fatalf("expected 5400, got %v", got)
	}
	if got := PlannedDuration(0.25); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}
}

func TestOvertimeAndProgress(t *testing.T) {
	started := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	if IsOvertime(started, started.Add(2*time.Hour), 2) {
		t.Fatal("exactly the planned duration is not overtime")
	}
	if !IsOvertime(started, started.Add(2*time.Hour+time.Second), 2) {
		t.Fatal("expected overtime one second past plan")
	}
	if got := ProgressPercent(started, started.Add(30*time.Minute), 2); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
	if got := ProgressPercent(started, started.Add(5*time.Hour), 2); got != 1 {
		t.Fatalf("expected progress capped at 1, got %v", got)
	}
	if got := ProgressPercent(started, started.Add(-time.Minute), 2); got != 0 {
		t.Fatalf("expected clock skew to clamp at 0, got %v", got)
	}
}

func TestMeasure(t *testing.T) {
	started := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	idle := Measure(nil, started, 1)
	if idle.Started || idle.Elapsed != 0 || idle.Planned != time.Hour {
		t.Fatalf("unexpected snapshot for unstarted session: %+v", idle)
	}

	over := Measure(&started, started.Add(75*time.Minute), 1)
	if !over.Overtime || over.OvertimeBy != 15*time.Minute || over.Percent != 1 {
		t.Fatalf("unexpected overtime snapshot: %+v", over)
	}
}
