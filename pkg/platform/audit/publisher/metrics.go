package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "moflow/pkg/platform/audit"
)

// Metrics holds Prometheus metrics shared by every session publisher.
// Create it once per process.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moflow_audit_entries_total",
			Help: "Audit log entries accepted, by kind",
		}, []string{"kind"}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "moflow_audit_entries_dropped_total",
			Help: "Audit log entries dropped because the async buffer was full",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "moflow_audit_persist_failures_total",
			Help: "Audit log entries that could not be stored",
		}),
	}
}

func (m *Metrics) incEmitted(kind audit.Kind) {
	if m != nil {
		m.Emitted.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}
