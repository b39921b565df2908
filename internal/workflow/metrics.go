package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submissions *prometheus.CounterVec
}

// NewMetrics registers on the default registry; create once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moflow_workflow_submissions_total",
			Help: "Workflow submissions by operation and result",
		}, []string{"operation", "result"}),
	}
}

func (m *Metrics) outcome(op string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.Submissions.WithLabelValues(op, result).Inc()
}
