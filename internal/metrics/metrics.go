package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 30, 120},
		},
		[]string{"method", "path"},
	)

	// Completion transport
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_llm_completions_total",
			Help: "Total completion calls by provider and outcome",
		},
		[]string{"provider", "status"}, // "ok" or "error"
	)

	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_llm_completion_duration_seconds",
			Help:    "Completion call latency",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// Deliberation
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_sessions_total",
			Help: "Finished deliberation sessions by outcome",
		},
		[]string{"outcome"}, // "consensus", "no_consensus" or "error"
	)

	RoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_rounds_total",
			Help: "Total discussion rounds run",
		},
	)

	PassResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_pass_responses_total",
			Help: "Persona responses classified as pass",
		},
	)

	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_votes_total",
			Help: "Parsed votes by choice",
		},
		[]string{"choice"},
	)

	VoteParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_vote_parse_failures_total",
			Help: "Vote responses the parser could not interpret",
		},
	)

	ModeratorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_moderator_failures_total",
			Help: "Consensus checks that fell back to not reached",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_store_latency_seconds",
			Help:    "Session store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend", "op"},
	)
)
