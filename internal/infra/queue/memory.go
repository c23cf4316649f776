package queue

import (
	"context"
	"errors"

	"issuepilot/internal/domain/entity"
)

// ErrQueueFull is returned when a bounded in-memory queue cannot accept
// another job without blocking the producer.
var ErrQueueFull = errors.New("notification queue is full")

// MemoryQueue is a channel-backed NotificationQueue for single-process
// deployments and tests.
type MemoryQueue struct {
	jobs chan entity.NotificationJob
}

// NewMemoryQueue creates an in-memory queue holding up to capacity
// pending jobs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{jobs: make(chan entity.NotificationJob, capacity)}
}

// Enqueue implements NotificationQueue.Enqueue. A full queue rejects the
// job instead of stalling the check job that produced it.
func (q *MemoryQueue) Enqueue(ctx context.Context, job entity.NotificationJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Pop implements NotificationQueue.Pop.
func (q *MemoryQueue) Pop(ctx context.Context) (entity.NotificationJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return entity.NotificationJob{}, ctx.Err()
	}
}
