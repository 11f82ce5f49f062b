package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_completions_total",
			Help: "Completion calls by result source (live, simulated, degraded)",
		},
		[]string{"source"},
	)

	CompletionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workspace_completion_latency_seconds",
			Help:    "Completion endpoint round-trip latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
		},
	)

	PlansCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_plans_created_total",
			Help: "Plans built, by path (model, fallback_parse, fallback_error)",
		},
		[]string{"path"},
	)

	PlanStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_plan_steps_total",
			Help: "Executed plan steps by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	PlanExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workspace_plan_execution_seconds",
			Help:    "Wall time of a full plan execution",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspace_active_sessions",
			Help: "Number of workspaces held in memory",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspace_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
