package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/queue"
	"issuepilot/internal/observability/metrics"
)

// Circuit breaker and pool constants
const (
	circuitBreakerThreshold = 5                // Consecutive failures before opening
	circuitBreakerTimeout   = 5 * time.Minute  // Duration to keep circuit breaker open
	deliveryTimeout         = 30 * time.Second // Timeout for one delivery attempt
	workerPoolTimeout       = 5 * time.Second  // Timeout for acquiring a worker slot
	popRetryDelay           = 1 * time.Second  // Pause after a queue read failure
)

// Dispatcher consumes the notification queue and delivers jobs to the
// configured channels. Producers only ever call Enqueue; delivery,
// failure handling and channel health are the dispatcher's concern.
type Dispatcher interface {
	// Enqueue hands a notification job to the queue without waiting for
	// delivery. Errors mean the queue rejected the job, not that
	// delivery failed.
	Enqueue(ctx context.Context, job entity.NotificationJob) error

	// Run consumes the queue until the context is canceled. Each popped
	// job fans out to all enabled channels on the worker pool.
	Run(ctx context.Context) error

	// ChannelHealth returns circuit breaker state per channel for
	// monitoring endpoints.
	ChannelHealth() []ChannelHealthStatus

	// Shutdown waits for in-flight deliveries to finish or the context
	// to expire.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus represents the health status of a notification channel.
type ChannelHealthStatus struct {
	Name               string
	Enabled            bool
	CircuitBreakerOpen bool
	DisabledUntil      *time.Time // nil when the breaker is closed
}

// dispatcher is the concrete implementation of Dispatcher.
type dispatcher struct {
	jobs          queue.NotificationQueue
	channels      []Channel
	workerPool    chan struct{}             // Semaphore limiting concurrent deliveries
	channelHealth map[string]*channelHealth // Circuit breaker state per channel
	healthMu      sync.RWMutex
	wg            sync.WaitGroup // Tracks in-flight deliveries
	logger        *slog.Logger
	popBackoff    time.Duration // Pause between queue reads after a failure
}

// channelHealth tracks circuit breaker state for a channel.
type channelHealth struct {
	consecutiveFailures int
	disabledUntil       time.Time
	mu                  sync.Mutex
}

// NewDispatcher creates a dispatcher reading from jobs and delivering to
// channels, with at most maxConcurrent deliveries in flight.
func NewDispatcher(jobs queue.NotificationQueue, channels []Channel, maxConcurrent int, logger *slog.Logger) Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &dispatcher{
		jobs:          jobs,
		channels:      channels,
		workerPool:    make(chan struct{}, maxConcurrent),
		channelHealth: make(map[string]*channelHealth),
		logger:        logger,
		popBackoff:    popRetryDelay,
	}
	for _, ch := range channels {
		d.channelHealth[ch.Name()] = &channelHealth{}
	}
	return d
}

// Enqueue implements Dispatcher.Enqueue.
func (d *dispatcher) Enqueue(ctx context.Context, job entity.NotificationJob) error {
	if job.RepositoryName == "" || job.RecipientEmail == "" {
		return ErrInvalidJob
	}
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		return err
	}
	metrics.RecordNotificationEnqueued()
	return nil
}

// Run implements Dispatcher.Run.
func (d *dispatcher) Run(ctx context.Context) error {
	d.logger.Info("notification dispatcher started",
		slog.Int("channels", len(d.channels)))

	for {
		job, err := d.jobs.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("notification dispatcher stopped")
				return ctx.Err()
			}
			d.logger.Error("failed to pop notification job",
				slog.Any("error", err))
			// A dead queue backend would otherwise spin this loop hot
			select {
			case <-time.After(d.popBackoff):
			case <-ctx.Done():
				d.logger.Info("notification dispatcher stopped")
				return ctx.Err()
			}
			continue
		}

		jobID := uuid.New().String()
		for _, ch := range d.channels {
			if !ch.IsEnabled() {
				continue
			}
			channel := ch
			d.wg.Add(1)
			go d.deliver(ctx, jobID, channel, job)
		}
	}
}

// deliver sends one job to one channel on the worker pool.
func (d *dispatcher) deliver(ctx context.Context, jobID string, channel Channel, job entity.NotificationJob) {
	defer d.wg.Done()

	// Panic recovery: a broken channel implementation must not kill the
	// dispatcher loop
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in notification channel",
				slog.String("job_id", jobID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	// Acquire worker slot (with timeout to prevent unbounded goroutine pileup)
	select {
	case d.workerPool <- struct{}{}:
		defer func() { <-d.workerPool }()
	case <-time.After(workerPoolTimeout):
		d.logger.Warn("worker pool full",
			slog.String("job_id", jobID),
			slog.String("channel", channel.Name()),
			slog.Any("error", ErrNotificationDropped))
		return
	case <-ctx.Done():
		return
	}

	health := d.getChannelHealth(channel.Name())
	health.mu.Lock()
	if time.Now().Before(health.disabledUntil) {
		d.logger.Warn("channel temporarily disabled by circuit breaker",
			slog.String("job_id", jobID),
			slog.String("channel", channel.Name()),
			slog.Time("disabled_until", health.disabledUntil),
			slog.Any("error", ErrNotificationDropped))
		health.mu.Unlock()
		return
	}
	health.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := channel.Send(sendCtx, job)
	duration := time.Since(start)

	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= circuitBreakerThreshold {
			health.disabledUntil = time.Now().Add(circuitBreakerTimeout)
			d.logger.Error("circuit breaker opened for channel",
				slog.String("job_id", jobID),
				slog.String("channel", channel.Name()),
				slog.Int("consecutive_failures", health.consecutiveFailures))
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	metrics.RecordNotificationDelivery(channel.Name(), err == nil, duration)
	if err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("job_id", jobID),
			slog.String("channel", channel.Name()),
			slog.String("repository", job.RepositoryName),
			slog.String("recipient", job.RecipientEmail),
			slog.Duration("duration", duration),
			slog.Any("error", err))
	} else {
		d.logger.Info("notification delivered",
			slog.String("job_id", jobID),
			slog.String("channel", channel.Name()),
			slog.String("repository", job.RepositoryName),
			slog.String("recipient", job.RecipientEmail),
			slog.Duration("duration", duration))
	}
}

// getChannelHealth returns circuit breaker state for a channel.
func (d *dispatcher) getChannelHealth(name string) *channelHealth {
	d.healthMu.RLock()
	defer d.healthMu.RUnlock()
	return d.channelHealth[name]
}

// ChannelHealth implements Dispatcher.ChannelHealth.
func (d *dispatcher) ChannelHealth() []ChannelHealthStatus {
	d.healthMu.RLock()
	defer d.healthMu.RUnlock()

	statuses := make([]ChannelHealthStatus, 0, len(d.channels))
	for _, ch := range d.channels {
		health := d.channelHealth[ch.Name()]

		health.mu.Lock()
		var disabledUntil *time.Time
		open := false
		if time.Now().Before(health.disabledUntil) {
			open = true
			until := health.disabledUntil
			disabledUntil = &until
		}
		health.mu.Unlock()

		statuses = append(statuses, ChannelHealthStatus{
			Name:               ch.Name(),
			Enabled:            ch.IsEnabled(),
			CircuitBreakerOpen: open,
			DisabledUntil:      disabledUntil,
		})
	}
	return statuses
}

// Shutdown implements Dispatcher.Shutdown.
func (d *dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		d.logger.Warn("notification dispatcher shutdown timeout")
		return ctx.Err()
	}
}
