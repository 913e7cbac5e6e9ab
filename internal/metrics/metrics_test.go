package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/glebk/skillswap/internal/domain"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Transition(domain.SessionStatusPending, domain.SessionStatusApproved)
	m.Transition(domain.SessionStatusPending, domain.SessionStatusApproved)
	m.BarrierFired(domain.CheckpointCheckIn)
	m.ConcurrencyRetry()
	m.IntegrityFault()

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("pending", "approved")); got != 2 {
		t.Fatalf("transitions = %v", got)
	}
	if got := testutil.ToFloat64(m.barrierFires.WithLabelValues("checkin")); got != 1 {
		t.Fatalf("barrier fires = %v", got)
	}
	if got := testutil.ToFloat64(m.retries); got != 1 {
		t.Fatalf("retries = %v", got)
	}
	if got := testutil.ToFloat64(m.faults); got != 1 {
		t.Fatalf("faults = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Transition(domain.SessionStatusPending, domain.SessionStatusRejected)
	m.BarrierFired(domain.CheckpointCompletion)
	m.ConcurrencyRetry()
	m.IntegrityFault()
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.BarrierFired(domain.CheckpointCompletion)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `skillswap_barrier_fires_total{kind="completion"} 1`) {
		t.Fatalf("metric missing from output:\n%s", body)
	}
}
