// Package metrics provides Prometheus metrics instrumentation for both the
// chat client and the reference agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks agent HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_request_duration_seconds",
			Help:    "Agent HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total agent HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_requests_total",
			Help: "Total agent HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMStreamDuration tracks summarizer streaming duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60, 120},
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

	// SSEConnectionsActive tracks active agent SSE responses.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// DailyEntriesTotal tracks committed daily entries by source.
	DailyEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daily_entries_total",
			Help: "Total daily entries committed",
		},
		[]string{"source"},
	)

	// ImportPreviewsActive tracks unconsumed import tokens.
	ImportPreviewsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "import_previews_active",
			Help: "Number of import previews awaiting confirmation",
		},
	)

	// ClientRequestsTotal tracks client requests by endpoint and outcome.
	ClientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailychat_client_requests_total",
			Help: "Requests issued by the chat client",
		},
		[]string{"method", "path", "status"},
	)

	// ClientStreamEventsTotal tracks decoded stream events by kind.
	ClientStreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailychat_stream_events_total",
			Help: "Stream events decoded by the chat client",
		},
		[]string{"event"},
	)

	// ClientStreamDecodeErrors tracks dropped malformed frames.
	ClientStreamDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dailychat_stream_decode_errors_total",
			Help: "Malformed stream data lines dropped by the chat client",
		},
	)

	// SessionCacheLookups tracks session cache hits and misses on switch.
	SessionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailychat_session_cache_lookups_total",
			Help: "Session cache lookups on session switch",
		},
		[]string{"result"},
	)

	// SessionFetchesDiscarded tracks fetches that lost to a fresher cache.
	SessionFetchesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dailychat_session_fetches_discarded_total",
			Help: "Session message fetches discarded because the local list was longer",
		},
	)
)

// RecordRequest records metrics for an agent HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMStream records metrics for an LLM streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

// RecordClientRequest records a request issued by the chat client.
func RecordClientRequest(method, path, status string) {
	ClientRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStreamEvent records a decoded stream event.
func RecordStreamEvent(kind string) {
	ClientStreamEventsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records a session cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		SessionCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	SessionCacheLookups.WithLabelValues("miss").Inc()
}
