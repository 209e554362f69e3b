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
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
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

	// GatewayAttemptDuration tracks single provider call duration.
	GatewayAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_gateway_attempt_duration_seconds",
			Help:    "LLM provider call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "status"},
	)

	// GatewayAttemptsTotal tracks provider calls by outcome.
	GatewayAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_gateway_attempts_total",
			Help: "Total LLM provider calls",
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"mode"},
	)

	// RoundsTotal tracks chat rounds by outcome.
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rounds_total",
			Help: "Total chat rounds",
		},
		[]string{"mode", "outcome"},
	)

	// ConversationsCompleted tracks conversations reaching a terminal state.
	ConversationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_completed_total",
			Help: "Conversations that reached a terminal state",
		},
		[]string{"mode", "result"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGatewayAttempt records one provider call.
func RecordGatewayAttempt(provider, status string, duration float64) {
	GatewayAttemptDuration.WithLabelValues(provider, status).Observe(duration)
	GatewayAttemptsTotal.WithLabelValues(provider, status).Inc()
}

// RecordTokens records token usage reported by a provider.
func RecordTokens(provider string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

// RecordRound records the outcome of a chat round.
func RecordRound(mode, outcome string) {
	RoundsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordCompletion records a conversation reaching a terminal state.
func RecordCompletion(mode string, won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	ConversationsCompleted.WithLabelValues(mode, result).Inc()
}
