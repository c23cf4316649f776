package metrics

import (
	"fmt"
	"time"
)

// RecordPollCycle records the outcome and duration of one fan-out cycle.
// Outcome should be either "success" or "error".
func RecordPollCycle(outcome string, duration time.Duration) {
	PollCyclesTotal.WithLabelValues(outcome).Inc()
	PollCycleDuration.Observe(duration.Seconds())
}

// RecordCheckJob records the result of a repository check job.
// Outcome should be one of "changed", "unchanged" or "error".
func RecordCheckJob(provider string, outcome string, duration time.Duration) {
	CheckJobsTotal.WithLabelValues(provider, outcome).Inc()
	CheckJobDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordProviderRequest records one upstream HTTP attempt.
// The status label groups codes into classes ("2xx", "4xx", "5xx", "network_error").
func RecordProviderRequest(provider string, statusCode int) {
	status := "network_error"
	if statusCode > 0 {
		status = fmt.Sprintf("%dxx", statusCode/100)
	}
	ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordRateLimitHit records a provider rate-limit exhaustion.
func RecordRateLimitHit(provider string) {
	ProviderRateLimitHits.WithLabelValues(provider).Inc()
}

// RecordCacheLookup records a result cache lookup for an operation kind.
func RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(operation, result).Inc()
}

// RecordNotificationEnqueued records one notification job handed to the queue.
func RecordNotificationEnqueued() {
	NotificationsEnqueuedTotal.Inc()
}

// RecordNotificationDelivery records one delivery attempt on a channel.
func RecordNotificationDelivery(channel string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	NotificationsDeliveredTotal.WithLabelValues(channel, status).Inc()
	NotificationDeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}
