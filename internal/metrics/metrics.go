// Package metrics exposes Prometheus instrumentation for the decision
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline records into. Construct one
// per process with New and share it; all collectors are registered on the
// supplied registry.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	InspectLatency prometheus.Histogram
	GatewayRetries prometheus.Counter
	Reconnects     *prometheus.CounterVec
	BlockedChunks  prometheus.Counter
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordon",
			Name:      "decisions_total",
			Help:      "Policy decisions by surface, verdict and operating mode.",
		}, []string{"surface", "verdict", "mode"}),
		InspectLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cordon",
			Name:      "inspect_latency_seconds",
			Help:      "Round-trip latency of inspection calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatewayRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cordon",
			Name:      "gateway_retries_total",
			Help:      "Retried gateway attempts after retryable failures.",
		}),
		Reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cordon",
			Name:      "stream_reconnects_total",
			Help:      "Stream reconnection attempts by outcome.",
		}, []string{"outcome"}),
		BlockedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cordon",
			Name:      "blocked_chunks_total",
			Help:      "Streaming chunks withheld by a block decision.",
		}),
	}
}

// Nop returns metrics backed by a private registry, for callers that do
// not export metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
