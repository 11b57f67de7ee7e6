package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts auth operations by outcome.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics registers auth counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "reel_auth_requests_total",
			Help: "Auth API requests by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
}
