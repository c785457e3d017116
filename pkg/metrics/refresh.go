// Package metrics exposes Prometheus instrumentation for the configuration
// refresh engine, failover executor, and push notification intake.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh-cycle metrics.
//
// Labels:
//   - status: success, error, skipped (min-backoff interval not yet elapsed)
var (
	// RefreshTotal tracks total refresh attempts by status.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteconfig",
			Subsystem: "refresh",
			Name:      "total",
			Help:      "Total number of refresh cycle attempts by status",
		},
		[]string{"status"},
	)

	// RefreshDuration tracks refresh cycle duration.
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remoteconfig",
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Duration of refresh cycle operations",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
	)

	// RefreshChangedSettings tracks the number of changed settings per refresh cycle.
	RefreshChangedSettings = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remoteconfig",
			Subsystem: "refresh",
			Name:      "changed_settings",
			Help:      "Number of settings added, modified, or deleted per refresh cycle",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// RefreshLastSuccess tracks the timestamp of the last successful refresh.
	RefreshLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remoteconfig",
			Subsystem: "refresh",
			Name:      "last_success_timestamp_seconds",
			Help:      "Timestamp of last successful refresh (Unix epoch)",
		},
	)

	// RefreshConsecutiveFailures tracks the current crash-loop dampening counter.
	RefreshConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remoteconfig",
			Subsystem: "refresh",
			Name:      "consecutive_failures",
			Help:      "Current count of consecutive failed refresh attempts",
		},
	)
)

// Replica failover metrics.
//
// Labels:
//   - endpoint: the replica host being reported on
var (
	// ReplicaRequestsTotal tracks requests attempted against a replica by outcome.
	ReplicaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteconfig",
			Subsystem: "replica",
			Name:      "requests_total",
			Help:      "Total requests attempted per replica, by outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// ReplicaFailoversTotal tracks failover transitions away from a replica.
	ReplicaFailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteconfig",
			Subsystem: "replica",
			Name:      "failovers_total",
			Help:      "Total number of failovers away from a replica, by reason",
		},
		[]string{"endpoint", "reason"},
	)

	// ReplicaBackoffSeconds tracks the cooldown duration applied to a replica.
	ReplicaBackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remoteconfig",
			Subsystem: "replica",
			Name:      "backoff_seconds",
			Help:      "Backoff duration applied before a replica is retried",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"endpoint"},
	)

	// ReplicaAvailable reports whether a replica is currently usable (1) or in cooldown (0).
	ReplicaAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "remoteconfig",
			Subsystem: "replica",
			Name:      "available",
			Help:      "Whether a replica is currently eligible for selection",
		},
		[]string{"endpoint"},
	)
)

// Push notification intake metrics.
var (
	// PushNotificationsTotal tracks accepted push notifications by outcome.
	PushNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteconfig",
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Total push notifications received, by outcome (accepted, rejected, rate_limited, unknown_endpoint)",
		},
		[]string{"outcome"},
	)

	// PushDelaySeconds tracks the randomized delay applied before honoring a push.
	PushDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remoteconfig",
			Subsystem: "push",
			Name:      "delay_seconds",
			Help:      "Randomized delay applied before acting on a push notification",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 30},
		},
	)
)

// WatcherEtagMismatches tracks how often a watcher's etag comparison detects a change.
var WatcherEtagMismatches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "remoteconfig",
		Subsystem: "watcher",
		Name:      "etag_mismatches_total",
		Help:      "Total number of watcher polls that detected an etag mismatch",
	},
	[]string{"key", "label"},
)

// AdapterInvalidationsTotal tracks adapter cache invalidations triggered by a refresh.
var AdapterInvalidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "remoteconfig",
		Subsystem: "adapter",
		Name:      "invalidations_total",
		Help:      "Total number of adapter cache invalidations triggered by setting changes",
	},
	[]string{"adapter"},
)
