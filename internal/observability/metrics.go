package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the turn pipeline end to end: ingress decisions, flow
// routing, LLM loop behavior, tool executions and bulk batches.
type Metrics struct {
	// TurnsTotal counts completed turns by outcome.
	// Labels: outcome (flow|llm|error|ratelimited)
	TurnsTotal *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// IngressDropped counts updates dropped before the orchestrator runs.
	// Labels: reason (duplicate|stale|ratelimited)
	IngressDropped *prometheus.CounterVec

	// FlowRouted counts turns claimed by a pending flow.
	// Labels: flow
	FlowRouted *prometheus.CounterVec

	// LLMRequests counts LLM calls by provider and status.
	// Labels: provider, status (success|error)
	LLMRequests *prometheus.CounterVec

	// LLMLoopIterations observes tool-loop iterations per turn.
	LLMLoopIterations prometheus.Histogram

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// BulkBatches counts executed bulk batches.
	// Labels: domain, action
	BulkBatches *prometheus.CounterVec

	// PendingFlows gauges currently persisted pending records per flow.
	// Labels: flow
	PendingFlows *prometheus.GaugeVec
}

// NewMetrics registers all collectors on the given registerer. Pass nil to
// use the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "majordomo_turns_total",
			Help: "Completed turns by outcome.",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "majordomo_turn_duration_seconds",
			Help:    "End-to-end turn latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		IngressDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "majordomo_ingress_dropped_total",
			Help: "Updates dropped before orchestration.",
		}, []string{"reason"}),
		FlowRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "majordomo_flow_routed_total",
			Help: "Turns claimed by a pending flow.",
		}, []string{"flow"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "majordomo_llm_requests_total",
			Help: "LLM calls by provider and status.",
		}, []string{"provider", "status"}),
		LLMLoopIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "majordomo_llm_loop_iterations",
			Help:    "Tool-loop iterations per LLM turn.",
			Buckets: []float64{1, 2, 3, 5, 8, 10},
		}),
		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "majordomo_tool_executions_total",
			Help: "Tool invocations by status.",
		}, []string{"tool", "status"}),
		BulkBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "majordomo_bulk_batches_total",
			Help: "Executed bulk batches.",
		}, []string{"domain", "action"}),
		PendingFlows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "majordomo_pending_flows",
			Help: "Persisted pending records per flow.",
		}, []string{"flow"}),
	}
}

// NewTestMetrics returns metrics on a private registry so tests never
// collide on the default registerer.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
