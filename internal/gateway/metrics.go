package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for remote MO API calls. Registered on the default registry, so
// create it once per process.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	Outcomes        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moflow_gateway_request_duration_seconds",
			Help:    "Duration of remote MO API calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "entity"}),

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moflow_gateway_outcomes_total",
			Help: "Remote MO API call outcomes",
		}, []string{"operation", "entity", "outcome"}), // outcome: ok, app_error, transport_error
	}
}

func (m *Metrics) observe(op, entity, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(op, entity).Observe(d.Seconds())
	m.Outcomes.WithLabelValues(op, entity, outcome).Inc()
}
