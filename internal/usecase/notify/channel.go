// Package notify dispatches notification jobs produced by repository
// check jobs. It consumes the notification queue and delivers each job
// to every enabled channel, with a worker pool, per-channel circuit
// breakers and panic isolation so one bad delivery never takes the
// dispatcher down.
package notify

import (
	"context"

	"issuepilot/internal/domain/entity"
)

// Channel represents a notification delivery channel (email, chat, etc.).
// Each channel implementation handles its own rate limiting, retries, and
// error handling.
//
// Thread Safety:
//   - All methods must be safe for concurrent use by multiple goroutines
//
// Context Handling:
//   - Implementations must respect context cancellation and timeout
type Channel interface {
	// Name returns the human-readable name of the channel (e.g., "email").
	// This is used for logging, metrics, and health check endpoints.
	Name() string

	// IsEnabled returns true if this channel is enabled via configuration.
	// Disabled channels are skipped during dispatching.
	IsEnabled() bool

	// Send delivers one notification job to this channel.
	//
	// Implementations must:
	//   - Respect context cancellation/timeout
	//   - Retry transient failures internally where that makes sense
	//   - Sanitize credentials in error messages
	//
	// Returns a non-nil error if delivery failed after the channel's own
	// retry policy.
	Send(ctx context.Context, job entity.NotificationJob) error
}
