package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request latency by method, route, and status,
// consumed by the httpserver.Metrics middleware.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "verseforge",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// GenerationsTotal counts generation attempts by outcome (success, rejected,
// model_error, rate_limited).
var GenerationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "verseforge",
		Subsystem: "generations",
		Name:      "total",
		Help:      "Total number of /api/generate attempts by outcome.",
	},
	[]string{"outcome"},
)

// ModelInvocationDuration records ModelClient.Run latency.
var ModelInvocationDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "verseforge",
		Subsystem: "model",
		Name:      "invocation_duration_seconds",
		Help:      "Image model invocation duration in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 25, 30},
	},
)

// RateLimitDecisionsTotal counts RateCoordinator check outcomes.
var RateLimitDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "verseforge",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Total rate limit check decisions by tier and outcome.",
	},
	[]string{"tier", "outcome"},
)

// CleanupDeletedTotal counts images deleted by the cleanup job.
var CleanupDeletedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "verseforge",
		Subsystem: "cleanup",
		Name:      "images_deleted_total",
		Help:      "Total number of images deleted by the retention cleanup job.",
	},
)

// SchedulerRunsTotal counts scheduled job executions by job name and outcome.
var SchedulerRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "verseforge",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Total number of scheduled job executions by job and outcome.",
	},
	[]string{"job", "outcome"},
)

// QuotaUsageRatio reports the current fraction of configured quota consumed
// per resource, polled by the quota alert check.
var QuotaUsageRatio = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "verseforge",
		Subsystem: "quota",
		Name:      "usage_ratio",
		Help:      "Fraction of configured quota threshold currently consumed, by resource.",
	},
	[]string{"resource"},
)

// All returns every VerseForge-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		GenerationsTotal,
		ModelInvocationDuration,
		RateLimitDecisionsTotal,
		CleanupDeletedTotal,
		SchedulerRunsTotal,
		QuotaUsageRatio,
	}
}
