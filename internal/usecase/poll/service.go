// Package poll implements the periodic fan-out over active subscriptions.
// Each cycle pages through active users, dispatches one independent check
// job per (user, repository) pair, and enqueues a notification job for
// every repository with fresh issue activity.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/provider"
	"issuepilot/internal/observability/metrics"
	"issuepilot/internal/repository"
	"issuepilot/internal/resilience/retry"
	"issuepilot/internal/usecase/notify"
)

const (
	defaultPageSize    = 100
	defaultLookback    = time.Hour
	defaultParallelism = 10
)

// Config holds configuration for the fan-out scheduler.
type Config struct {
	// PageSize is the number of active users fetched per registry page
	PageSize int

	// Lookback is how far back a check job looks for issue activity.
	// It must be longer than the polling interval or activity between
	// cycles falls through the gap.
	Lookback time.Duration

	// Parallelism is the maximum number of concurrent check jobs
	Parallelism int

	// JobRetry is the retry policy applied around each check job
	JobRetry retry.Config
}

// DefaultConfig returns the scheduler configuration used in production:
// pages of 100 users, a one-hour lookback window, and the three-attempt,
// two-minute-delay retry policy for check jobs.
func DefaultConfig() Config {
	return Config{
		PageSize:    defaultPageSize,
		Lookback:    defaultLookback,
		Parallelism: defaultParallelism,
		JobRetry:    retry.CheckJobConfig(),
	}
}

// Service is the fan-out scheduler. It reads subscriptions from the
// registry, asks providers about issue activity, and hands notification
// jobs to the dispatcher.
type Service struct {
	Subscriptions repository.SubscriptionRegistry
	Providers     provider.Registry
	Dispatcher    notify.Dispatcher

	cfg Config
	now func() time.Time
}

// NewService creates a new poll Service with the provided dependencies.
func NewService(
	subscriptions repository.SubscriptionRegistry,
	providers provider.Registry,
	dispatcher notify.Dispatcher,
	cfg Config,
) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.JobRetry.MaxAttempts <= 0 {
		cfg.JobRetry = retry.CheckJobConfig()
	}
	return &Service{
		Subscriptions: subscriptions,
		Providers:     providers,
		Dispatcher:    dispatcher,
		cfg:           cfg,
		now:           time.Now,
	}
}

// CycleStats contains statistics about one fan-out cycle.
type CycleStats struct {
	Subscribers int64
	Checked     int64
	Updated     int64
	Failed      int64
	Duration    time.Duration
}

// CheckAllSubscriptions runs one fan-out cycle over all active users.
//
// Users are fetched page by page so a large user base never loads into
// memory at once. Every (user, repository) pair becomes an independent
// check job: a failing or panicking job is counted and logged but never
// stops the cycle. Only a registry enumeration failure aborts the cycle,
// because without the user list there is nothing left to do.
func (s *Service) CheckAllSubscriptions(ctx context.Context) (*CycleStats, error) {
	logger := slog.Default()
	start := s.now()
	stats := &CycleStats{}
	since := start.Add(-s.cfg.Lookback)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Parallelism)

	for offset := 0; ; offset += s.cfg.PageSize {
		subscribers, err := s.Subscriptions.ListActiveSubscribersPage(ctx, offset, s.cfg.PageSize)
		if err != nil {
			// Wait for jobs already dispatched from earlier pages
			_ = eg.Wait()
			stats.Duration = s.now().Sub(start)
			metrics.RecordPollCycle("error", stats.Duration)
			return stats, fmt.Errorf("list active subscribers: %w", err)
		}
		if len(subscribers) == 0 {
			break
		}
		stats.Subscribers += int64(len(subscribers))

		for _, subscriber := range subscribers {
			sub := subscriber
			for _, watched := range sub.Repositories {
				repo := watched
				eg.Go(func() error {
					s.checkRepository(egCtx, sub, repo, since, stats)
					// Job failures are isolated; never propagate
					return nil
				})
			}
		}
	}

	_ = eg.Wait()

	stats.Duration = s.now().Sub(start)
	metrics.RecordPollCycle("success", stats.Duration)
	logger.Info("fan-out cycle completed",
		slog.Int64("subscribers", stats.Subscribers),
		slog.Int64("checked", stats.Checked),
		slog.Int64("updated", stats.Updated),
		slog.Int64("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
	)

	return stats, nil
}

// checkRepository runs one check job for a (user, repository) pair.
//
// The provider call is wrapped in the job retry policy, and the whole job
// is wrapped in panic recovery so a broken provider client cannot take the
// cycle down. When the repository has fresh activity, exactly one
// notification job is enqueued for this pair.
func (s *Service) checkRepository(
	ctx context.Context,
	sub *entity.Subscriber,
	repo *entity.Repository,
	since time.Time,
	stats *CycleStats,
) {
	logger := slog.Default()
	jobID := uuid.New().String()
	jobStart := s.now()
	outcome := "error"

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&stats.Failed, 1)
			metrics.RecordCheckJob(repo.Type.String(), "error", s.now().Sub(jobStart))
			logger.Error("panic in check job",
				slog.String("job_id", jobID),
				slog.String("repository", repo.FullName()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	atomic.AddInt64(&stats.Checked, 1)

	prov, err := s.Providers.Get(repo.Type)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		metrics.RecordCheckJob(repo.Type.String(), outcome, s.now().Sub(jobStart))
		logger.Error("check job failed: no provider",
			slog.String("job_id", jobID),
			slog.String("repository", repo.FullName()),
			slog.Any("error", err))
		return
	}

	retryCfg := s.cfg.JobRetry
	retryCfg.IsRetryable = jobRetryable

	var updated bool
	err = retry.WithBackoff(ctx, retryCfg, func() error {
		var checkErr error
		updated, checkErr = prov.HasUpdatedIssues(ctx, repo.Owner, repo.Name, sub.Token, since)
		return checkErr
	})

	duration := s.now().Sub(jobStart)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		metrics.RecordCheckJob(repo.Type.String(), outcome, duration)
		logger.Warn("check job failed",
			slog.String("job_id", jobID),
			slog.Int64("user_id", sub.ID),
			slog.String("repository", repo.FullName()),
			slog.Any("error", err))
		return
	}

	if !updated {
		outcome = "unchanged"
		metrics.RecordCheckJob(repo.Type.String(), outcome, duration)
		return
	}

	outcome = "changed"
	atomic.AddInt64(&stats.Updated, 1)
	metrics.RecordCheckJob(repo.Type.String(), outcome, duration)

	job := entity.NotificationJob{
		RepositoryName: repo.Name,
		Owner:          repo.Owner,
		RecipientEmail: sub.Email,
	}
	if err := s.Dispatcher.Enqueue(ctx, job); err != nil {
		logger.Error("failed to enqueue notification",
			slog.String("job_id", jobID),
			slog.Int64("user_id", sub.ID),
			slog.String("repository", repo.FullName()),
			slog.Any("error", err))
		return
	}

	logger.Info("repository updated, notification enqueued",
		slog.String("job_id", jobID),
		slog.Int64("user_id", sub.ID),
		slog.String("repository", repo.FullName()),
		slog.Duration("duration", duration))
}

// jobRetryable classifies check job errors for the retry policy. Provider
// failures, including rate limits, are transient at the two-minute retry
// timescale; only cancellation and bad input abort immediately.
func jobRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, entity.ErrInvalidInput) {
		return false
	}
	return true
}
