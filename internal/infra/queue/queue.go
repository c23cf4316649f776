// Package queue provides notification job queues. The producing side is
// fire-and-forget; consumers block on Pop until a job or cancellation.
package queue

import (
	"context"

	"issuepilot/internal/domain/entity"
)

// NotificationQueue carries notification jobs from check jobs to the
// dispatcher. Implementations must be safe for many concurrent
// producers and consumers.
type NotificationQueue interface {
	// Enqueue hands a job to the queue. It returns once the job is
	// accepted, not delivered.
	Enqueue(ctx context.Context, job entity.NotificationJob) error

	// Pop blocks until a job is available or the context is done.
	Pop(ctx context.Context) (entity.NotificationJob, error)
}
