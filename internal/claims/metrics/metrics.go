package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for claim operations and event delivery.
type Metrics struct {
	// Operation outcomes by operation and result code
	Operations *prometheus.CounterVec

	// End-to-end latency of a claim operation including its transaction
	OperationLatency *prometheus.HistogramVec

	// Relay deliveries by outcome
	RelayPublished *prometheus.CounterVec

	// Undelivered outbox rows seen by the last relay pass
	OutboxBacklog prometheus.Gauge
}

// New creates a new Metrics instance with all claim metrics registered.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "claimreg_claim_operations_total",
			Help: "Total claim operations by operation and result",
		}, []string{"operation", "result"}), // result: "ok" or a domain error code

		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimreg_claim_operation_duration_seconds",
			Help:    "Duration of claim operations",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),

		RelayPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "claimreg_relay_events_total",
			Help: "Claim events handled by the outbox relay",
		}, []string{"outcome"}), // outcome: "published", "failed"

		OutboxBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "claimreg_outbox_backlog",
			Help: "Undelivered claim events in the outbox",
		}),
	}
}

// ObserveOperation records the outcome and duration of one operation.
func (m *Metrics) ObserveOperation(operation, result string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(operation, result).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRelayPublished(n int) {
	if m != nil && n > 0 {
		m.RelayPublished.WithLabelValues("published").Add(float64(n))
	}
}

func (m *Metrics) IncrementRelayFailed() {
	if m != nil {
		m.RelayPublished.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) SetOutboxBacklog(n int) {
	if m != nil {
		m.OutboxBacklog.Set(float64(n))
	}
}
