// Package telemetry declares the Prometheus collectors of the service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coachcrm"

var (
	OrphansStitched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphans_stitched_total",
		Help:      "Coaches linked to an upline that signed up after them.",
	})
	StitchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stitch_failures_total",
		Help:      "Stitching steps that failed and were skipped.",
	}, []string{"step"})
	DownlinesVerified = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "downlines_verified_total",
		Help:      "Coaches confirmed as descending from a manager that declared them.",
	})
	HierarchyCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hierarchy_cycles_total",
		Help:      "Upline walks aborted because the chain loops or exceeds the hop bound.",
	})
	LeaderboardSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_skipped_participants_total",
		Help:      "Contest participants left out of a leaderboard because the customer is gone.",
	})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
