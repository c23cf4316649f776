// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Polling metrics track fan-out cycles and per-repository check jobs
var (
	// PollCyclesTotal counts poll cycles by outcome ("success" or "error")
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"outcome"},
	)

	// PollCycleDuration measures the duration of a full poll cycle in seconds
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// CheckJobsTotal counts dispatched check jobs by provider and outcome
	// ("changed", "unchanged", "error")
	CheckJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "check_jobs_total",
			Help: "Total number of repository check jobs",
		},
		[]string{"provider", "outcome"},
	)

	// CheckJobDuration measures check job duration in seconds
	CheckJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "check_job_duration_seconds",
			Help:    "Repository check job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// Provider metrics track upstream API interactions
var (
	// ProviderRequestsTotal counts upstream HTTP requests by provider and status class
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of upstream provider HTTP requests",
		},
		[]string{"provider", "status"},
	)

	// ProviderRateLimitHits counts rate-limit exhaustion responses by provider
	ProviderRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_rate_limit_hits_total",
			Help: "Total number of provider rate limit exhaustions",
		},
		[]string{"provider"},
	)
)

// Cache metrics track result cache effectiveness
var (
	// CacheLookupsTotal counts cache lookups by operation and result ("hit" or "miss")
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"operation", "result"},
	)
)

// Notification metrics track dispatch of notification jobs
var (
	// NotificationsEnqueuedTotal counts notification jobs enqueued
	NotificationsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notification jobs enqueued",
		},
	)

	// NotificationsDeliveredTotal counts delivery attempts by channel and status
	// ("success" or "failure")
	NotificationsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "status"},
	)

	// NotificationDeliveryDuration measures delivery duration in seconds
	NotificationDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Notification delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)
