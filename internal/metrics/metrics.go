// Package metrics provides Prometheus metrics for watchfeed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished fetch and translate runs.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchfeed",
			Name:      "runs_total",
			Help:      "Total number of fetch and translate runs",
		},
		[]string{"type", "status"},
	)

	// PostsStored counts posts newly stored by fetch runs.
	PostsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "watchfeed",
			Name:      "posts_stored_total",
			Help:      "Total number of newly stored posts",
		},
	)

	// PostsPurged counts posts deleted by retention and orphan cleanup.
	PostsPurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchfeed",
			Name:      "posts_purged_total",
			Help:      "Total number of purged posts",
		},
		[]string{"reason"},
	)

	// TranslationsTotal counts per-post translation outcomes.
	TranslationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchfeed",
			Name:      "translations_total",
			Help:      "Total number of post translations",
		},
		[]string{"status"},
	)

	// UpstreamDuration measures provider and AI backend calls.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "watchfeed",
			Name:      "upstream_duration_seconds",
			Help:      "Duration of upstream calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"target"},
	)
)

// RecordRun records a finished run. status is "ok" when errorCount is zero,
// "partial" otherwise.
func RecordRun(runType string, errorCount int) {
	status := "ok"
	if errorCount > 0 {
		status = "partial"
	}
	RunsTotal.WithLabelValues(runType, status).Inc()
}

// RecordPurge records posts removed by a cleanup pass.
func RecordPurge(expired, orphans int) {
	PostsPurged.WithLabelValues("expired").Add(float64(expired))
	PostsPurged.WithLabelValues("orphan").Add(float64(orphans))
}

// RecordTranslation records one per-post translation outcome.
func RecordTranslation(ok bool) {
	if ok {
		TranslationsTotal.WithLabelValues("ok").Inc()
		return
	}
	TranslationsTotal.WithLabelValues("error").Inc()
}

// ObserveUpstream records the duration of one upstream call in seconds.
func ObserveUpstream(target string, seconds float64) {
	UpstreamDuration.WithLabelValues(target).Observe(seconds)
}
