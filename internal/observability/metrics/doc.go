// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - Poll cycle and check job metrics (outcome, duration)
//   - Provider request and rate limit metrics
//   - Result cache hit/miss metrics
//   - Notification delivery metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "issuepilot/internal/observability/metrics"
//
//	func checkRepository(provider string) {
//	    start := time.Now()
//	    // ... check for updated issues ...
//
//	    metrics.RecordCheckJob(provider, "changed", time.Since(start))
//	}
package metrics
