// Package observability provides Prometheus metrics for the vector store:
// operation counts and latencies, and credential resolution outcomes.
package observability

import "github.com/prometheus/client_golang/prometheus"

// StoreBuckets defines histogram buckets suited for database round-trips,
// ranging from 1ms to 30s.
var StoreBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

var (
	// OperationsTotal counts store operations by operation and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_operations_total",
			Help: "Store operations",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration records store operation duration in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecstore_operation_duration_seconds",
			Help:    "Store operation duration",
			Buckets: StoreBuckets,
		},
		[]string{"operation"},
	)

	// CredentialResolutionsTotal counts credential resolutions performed by
	// the connect-time hook, by outcome.
	CredentialResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_credential_resolutions_total",
			Help: "Credential resolutions",
		},
		[]string{"status"},
	)

	// EmbeddingRequestsTotal counts embedder calls by outcome.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecstore_embedding_requests_total",
			Help: "Embedder requests",
		},
		[]string{"status"},
	)

	// EmbeddingLatency records embedder call latency in seconds.
	EmbeddingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vecstore_embedding_latency_seconds",
			Help:    "Embedder latency",
			Buckets: StoreBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		CredentialResolutionsTotal,
		EmbeddingRequestsTotal,
		EmbeddingLatency,
	)
}
