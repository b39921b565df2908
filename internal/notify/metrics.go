package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published *prometheus.CounterVec
	Failed    prometheus.Counter
}

// NewMetrics registers on the default registry; create once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moflow_notifications_published_total",
			Help: "Change notifications published by topic",
		}, []string{"topic"}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "moflow_notifications_failed_total",
			Help: "Change notifications that could not be published",
		}),
	}
}

func (m *Metrics) published(topic string) {
	if m != nil {
		m.Published.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failed.Inc()
	}
}
