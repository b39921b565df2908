package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP layer Prometheus metrics.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
	Responses      *prometheus.CounterVec
}

// New creates and registers the HTTP metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern and method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
		Responses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moflow_http_responses_total",
			Help: "HTTP responses by route pattern and status class",
		}, []string{"route", "class"}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, method).Observe(d.Seconds())
	m.Responses.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
