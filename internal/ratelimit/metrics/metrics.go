package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions        *prometheus.CounterVec
	FallbackChecks   prometheus.Counter
	CircuitOpenGauge prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "claimreg_ratelimit_decisions_total",
			Help: "Claim mutation rate limit decisions by outcome",
		}, []string{"outcome"}),
		FallbackChecks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "claimreg_ratelimit_fallback_checks_total",
			Help: "Rate limit checks answered by the in-memory fallback",
		}),
		CircuitOpenGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "claimreg_ratelimit_circuit_open",
			Help: "1 while the primary rate limit store circuit is open",
		}),
	}
}

func (m *Metrics) ObserveDecision(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.FallbackChecks.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitOpenGauge.Set(v)
}
