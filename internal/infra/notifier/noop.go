package notifier

import (
	"context"

	"issuepilot/internal/domain/entity"
)

// NoOpChannel is a no-operation notification channel.
// It is used when notifications are disabled to avoid null checks in the code.
// This follows the Null Object pattern.
type NoOpChannel struct{}

// NewNoOpChannel creates a new NoOpChannel instance.
func NewNoOpChannel() *NoOpChannel {
	return &NoOpChannel{}
}

// Name returns the channel name.
func (n *NoOpChannel) Name() string { return "noop" }

// IsEnabled always reports true so the dispatcher still drains the queue.
func (n *NoOpChannel) IsEnabled() bool { return true }

// Send does nothing and returns nil immediately.
// This allows the notification feature to be disabled without changing the code flow.
func (n *NoOpChannel) Send(ctx context.Context, job entity.NotificationJob) error {
	// No-op: intentionally does nothing
	return nil
}
