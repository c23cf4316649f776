package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrInvalidJob indicates that a notification job is missing required
	// fields (repository name or recipient).
	ErrInvalidJob = errors.New("invalid notification job")

	// ErrNotificationDropped indicates that a notification was dropped due to
	// worker pool saturation or an open circuit breaker. It appears as the
	// error field of the drop log lines so alerts can match on it.
	ErrNotificationDropped = errors.New("notification dropped")
)
