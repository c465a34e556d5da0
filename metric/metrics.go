// Package metric provides Prometheus instrumentation for the event
// pipeline: core counters maintained by the event loop and a registry
// that modules can attach their own metrics to.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core pipeline metrics.
type Metrics struct {
	// TransitionsTotal counts transitions emitted by the event loop,
	// labelled by transition kind.
	TransitionsTotal *prometheus.CounterVec

	// EventsTotal counts events dispatched through the module chain.
	EventsTotal prometheus.Counter

	// VerdictsTotal counts non-OK module verdicts, labelled by verdict.
	VerdictsTotal *prometheus.CounterVec

	// WorkersSpawned counts worker processes started by the coordinator.
	WorkersSpawned prometheus.Counter
}

// NewMetrics creates the core pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psana",
			Name:      "transitions_total",
			Help:      "Transitions emitted by the event loop by kind",
		}, []string{"kind"}),
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "psana",
			Name:      "events_total",
			Help:      "Events dispatched through the module chain",
		}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "psana",
			Name:      "module_verdicts_total",
			Help:      "Non-OK module verdicts by verdict",
		}, []string{"verdict"}),
		WorkersSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "psana",
			Name:      "workers_spawned_total",
			Help:      "Worker processes started by the master",
		}),
	}
}

// CountTransition increments the transition counter; nil receiver is a
// no-op so the loop can run unmetered.
func (m *Metrics) CountTransition(kind string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind).Inc()
}

// CountEvent increments the event counter; nil receiver is a no-op.
func (m *Metrics) CountEvent() {
	if m == nil {
		return
	}
	m.EventsTotal.Inc()
}

// CountVerdict increments the verdict counter; nil receiver is a no-op.
func (m *Metrics) CountVerdict(verdict string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(verdict).Inc()
}
