package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"issuepilot/internal/domain/entity"
)

// RedisQueue is a Redis-list-backed NotificationQueue so jobs survive a
// worker restart and can be drained by a separate dispatcher process.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given Redis list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "notification_jobs"
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue implements NotificationQueue.Enqueue.
func (q *RedisQueue) Enqueue(ctx context.Context, job entity.NotificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push notification job: %w", err)
	}
	return nil
}

// Pop implements NotificationQueue.Pop. It polls with a short blocking
// timeout so context cancellation is observed promptly.
func (q *RedisQueue) Pop(ctx context.Context) (entity.NotificationJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return entity.NotificationJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return entity.NotificationJob{}, ctx.Err()
				}
				continue
			}
			return entity.NotificationJob{}, fmt.Errorf("pop notification job: %w", err)
		}
		if len(res) != 2 {
			return entity.NotificationJob{}, errors.New("redis queue: unexpected BRPOP response")
		}

		var job entity.NotificationJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return entity.NotificationJob{}, fmt.Errorf("decode notification job: %w", err)
		}
		return job, nil
	}
}
