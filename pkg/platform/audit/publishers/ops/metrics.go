package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what happened to each operational event.
type Metrics struct {
	Tracked               prometheus.Counter
	Sampled               prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistFailures       prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tracked: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_audit_ops_tracked_total",
			Help: "Operational audit events persisted",
		}),
		Sampled: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_audit_ops_sampled_total",
			Help: "Operational audit events dropped by sampling",
		}),
		CircuitBreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_audit_ops_circuit_breaker_dropped_total",
			Help: "Operational audit events dropped while the circuit was open",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_audit_ops_persist_failures_total",
			Help: "Operational audit events the store rejected",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "dedup_audit_ops_circuit_breaker_state",
			Help: "1 while the ops audit circuit is open, 0 otherwise",
		}),
	}
}

func (m *Metrics) IncTracked()               { m.Tracked.Inc() }
func (m *Metrics) IncSampled()               { m.Sampled.Inc() }
func (m *Metrics) IncCircuitBreakerDropped() { m.CircuitBreakerDropped.Inc() }
func (m *Metrics) IncPersistFailures()       { m.PersistFailures.Inc() }

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
		return
	}
	m.CircuitBreakerState.Set(0)
}
