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

	// RunsTotal tracks provider runs by terminal state.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_runs_total",
			Help: "Provider runs by terminal state",
		},
		[]string{"state", "reason"},
	)

	// RunDuration tracks the end-to-end duration of a provider run.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_run_duration_seconds",
			Help:    "Provider run duration from submission to terminal state",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"state"},
	)

	// ToolCallsTotal tracks dispatched tool calls by name and outcome.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Tool calls dispatched by name and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"direction"},
	)

	// MemorySearchDuration tracks vector search latency.
	MemorySearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_search_duration_seconds",
			Help:    "Vector memory search latency",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"scope"},
	)

	// MemorySearchHits tracks matches returned per search.
	MemorySearchHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_search_hits",
			Help:    "Matches at or above threshold per search",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"scope"},
	)

	// MemoryWriteFailures tracks swallowed memory write errors.
	MemoryWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_write_failures_total",
			Help: "Memory writes that failed and were dropped",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// HandlesCreated tracks provider conversation handles created.
	HandlesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_handles_created_total",
			Help: "Provider conversation handles created",
		},
		[]string{"scope"},
	)

	// MessagesTotal tracks stored chat messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages stored",
		},
		[]string{"role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRun records the terminal outcome of a provider run.
func RecordRun(state, reason string, duration float64, tokensIn, tokensOut int) {
	RunsTotal.WithLabelValues(state, reason).Inc()
	RunDuration.WithLabelValues(state).Observe(duration)
	LLMTokensTotal.WithLabelValues("in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues("out").Add(float64(tokensOut))
}

// RecordMemorySearch records one vector search.
func RecordMemorySearch(scope string, duration float64, hits int) {
	MemorySearchDuration.WithLabelValues(scope).Observe(duration)
	MemorySearchHits.WithLabelValues(scope).Observe(float64(hits))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
