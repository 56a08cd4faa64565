// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// GraphBuildDuration tracks knowledge-graph build time.
	GraphBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_build_duration_seconds",
			Help:    "Knowledge graph build duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	// GraphNodes tracks the node count per graph built.
	GraphNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graph_nodes",
			Help:    "Nodes per built knowledge graph",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// GraphLinks tracks the link count per graph built.
	GraphLinks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graph_links",
			Help:    "Links per built knowledge graph",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// GraphSkippedThreads counts threads left off a graph for lack of an
	// embedding.
	GraphSkippedThreads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_skipped_threads_total",
			Help: "Threads excluded from graphs because they have no embedding",
		},
	)

	// SimilarityBatchCalls counts batch similarity lookups by phase.
	SimilarityBatchCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_batch_calls_total",
			Help: "Batch similarity lookups",
		},
		[]string{"phase", "status"},
	)

	// EmbeddingsTotal counts embedding requests.
	EmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embeddings_total",
			Help: "Embedding requests",
		},
		[]string{"status"},
	)

	// LLMRequestDuration tracks completion latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SummariesTotal counts summary requests by cache outcome.
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaries_total",
			Help: "Thread summary requests",
		},
		[]string{"result"},
	)

	// ThreadEventsTotal counts thread events published and consumed.
	ThreadEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thread_events_total",
			Help: "Thread events by direction and type",
		},
		[]string{"direction", "type"},
	)

	// NATSConsumerPending tracks pending messages for consumers.
	NATSConsumerPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_consumer_pending",
			Help: "Pending messages for NATS consumer",
		},
		[]string{"stream", "consumer"},
	)

	NATSConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_connected",
			Help: "1 while the NATS connection is up",
		},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per provider",
		},
		[]string{"name"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGraphBuild records a finished graph build.
func RecordGraphBuild(status string, duration float64, nodes, links int) {
	GraphBuildDuration.WithLabelValues(status).Observe(duration)
	if status == "ok" {
		GraphNodes.Observe(float64(nodes))
		GraphLinks.Observe(float64(links))
	}
}

// RecordLLM records metrics for a completion.
func RecordLLM(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// Status maps an error to the "ok"/"error" label used across these metrics.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
