// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_generations_total",
			Help: "Total number of group quotes generated",
		},
		[]string{"outcome"},
	)

	QuoteCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_requests_total",
			Help: "Quote cache lookups by result",
		},
		[]string{"result"},
	)

	MemberBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "member_quote_build_duration_seconds",
			Help: "Duration of per-member quote pipeline",
		},
	)

	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_calls_total",
			Help: "External service calls by service and status",
		},
		[]string{"service", "status"},
	)

	SchedulerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Tasks waiting in the rate scheduler queue",
		},
		[]string{"scheduler"},
	)

	SchedulerBudget = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_remaining_budget",
			Help: "Remaining reservoir budget",
		},
		[]string{"scheduler"},
	)
)
