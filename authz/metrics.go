package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type gateMetrics struct {
	decisions *prometheus.CounterVec
}

var defaultMetrics = &gateMetrics{
	decisions: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization gate decisions by policy and reason",
		},
		[]string{"policy", "reason"},
	),
}

func (m *gateMetrics) observe(policy Policy, d Decision) {
	m.decisions.WithLabelValues(policy.String(), string(d.Reason)).Inc()
}
