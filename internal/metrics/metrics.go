// Package metrics exposes lifecycle counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glebk/skillswap/internal/domain"
)

const namespace = "skillswap"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	transitions  *prometheus.CounterVec
	barrierFires *prometheus.CounterVec
	retries      prometheus.Counter
	faults       prometheus.Counter
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed session status transitions.",
		}, []string{"from", "to"}),
		barrierFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barrier_fires_total",
			Help:      "Two-party checkpoints that fired.",
		}, []string{"kind"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_retries_total",
			Help:      "Operations retried after a concurrent modification.",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_faults_total",
			Help:      "Operations aborted on an escrow inconsistency.",
		}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.barrierFires,
		m.retries,
		m.faults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Transition(from, to domain.SessionStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) BarrierFired(kind domain.CheckpointKind) {
	if m == nil {
		return
	}
	m.barrierFires.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ConcurrencyRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) IntegrityFault() {
	if m == nil {
		return
	}
	m.faults.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
