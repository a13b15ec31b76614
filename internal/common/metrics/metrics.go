// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by type and final status",
		},
		[]string{"run_type", "status"},
	)

	SyncPostingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_postings_total",
			Help: "Total postings processed by outcome (created, updated, expired, failed)",
		},
		[]string{"outcome"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sync_run_duration_seconds",
			Help: "Duration of sync runs in seconds",
		},
		[]string{"run_type"},
	)

	MatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_requests_total",
			Help: "Total match requests by resolution path (cache, remote, local)",
		},
		[]string{"path"},
	)

	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "match_duration_seconds",
			Help: "Duration of match requests in seconds",
		},
		[]string{"path"},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "result_cache_hits_total",
			Help: "Total result cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "result_cache_misses_total",
			Help: "Total result cache misses",
		},
	)

	RemoteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_relevance_failures_total",
			Help: "Total remote relevance service failures by error code",
		},
		[]string{"operation", "error_code"},
	)

	DigestEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_emails_total",
			Help: "Total digest emails by outcome (sent, skipped, failed)",
		},
		[]string{"outcome"},
	)
)
