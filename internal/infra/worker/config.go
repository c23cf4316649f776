package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"issuepilot/internal/pkg/config"
)

// WorkerConfig holds the configuration for the worker component.
// This configuration controls the cron schedule, timezone, the lookback
// window used by check jobs, and other operational parameters.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have sensible defaults and validation rules so the worker can
// operate safely even with invalid or missing configuration.
type WorkerConfig struct {
	// CronSchedule is the cron expression for the fan-out cycle.
	// Format: "minute hour day month weekday"
	// Default: "*/1 * * * *" (every minute)
	CronSchedule string

	// Timezone is the IANA timezone name for cron scheduling.
	// Default: "UTC"
	Timezone string

	// Lookback is how far back each check job looks for issue activity.
	// Must be longer than the interval between cron runs, otherwise
	// activity between two cycles is never seen.
	// Default: 1 hour
	Lookback time.Duration

	// PageSize is the number of active users fetched per registry page
	// during fan-out.
	// Range: 1-1000
	// Default: 100
	PageSize int

	// CheckParallelism is the maximum number of concurrent check jobs.
	// Range: 1-100
	// Default: 10
	CheckParallelism int

	// NotifyMaxConcurrent is the maximum number of concurrent notification
	// deliveries.
	// Range: 1-100
	// Default: 10
	NotifyMaxConcurrent int

	// PollTimeout is the maximum duration for a single fan-out cycle.
	// Default: 30 minutes
	PollTimeout time.Duration

	// HealthPort is the port number for the health check HTTP server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production default values:
// a fan-out every minute with a one-hour lookback, pages of 100 users,
// and ten concurrent check jobs.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:        "*/1 * * * *",
		Timezone:            "UTC",
		Lookback:            1 * time.Hour,
		PageSize:            100,
		CheckParallelism:    10,
		NotifyMaxConcurrent: 10,
		PollTimeout:         30 * time.Minute,
		HealthPort:          9091,
	}
}

// Validate checks if the configuration values are valid.
// Field checks use the reusable validators from internal/pkg/config; the
// lookback window is additionally checked against the cron interval,
// because a lookback shorter than the gap between two cycles silently
// drops activity.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}

	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	if err := config.ValidatePositiveDuration(c.Lookback); err != nil {
		errs = append(errs, fmt.Errorf("lookback: %w", err))
	} else if interval, err := cronInterval(c.CronSchedule); err == nil && c.Lookback <= interval {
		errs = append(errs, fmt.Errorf("lookback %v must exceed cron interval %v", c.Lookback, interval))
	}

	if err := config.ValidateIntRange(c.PageSize, 1, 1000); err != nil {
		errs = append(errs, fmt.Errorf("page size: %w", err))
	}

	if err := config.ValidateIntRange(c.CheckParallelism, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("check parallelism: %w", err))
	}

	if err := config.ValidateIntRange(c.NotifyMaxConcurrent, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("notify max concurrent: %w", err))
	}

	if err := config.ValidatePositiveDuration(c.PollTimeout); err != nil {
		errs = append(errs, fmt.Errorf("poll timeout: %w", err))
	}

	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// cronInterval estimates the interval between two consecutive runs of the
// given schedule by asking the parser for the next two activation times.
func cronInterval(schedule string) (time.Duration, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return 0, err
	}
	first := sched.Next(time.Now())
	second := sched.Next(first)
	return second.Sub(first), nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// This function implements the fail-open strategy:
//  1. Start with DefaultConfig() as base
//  2. Load each field from environment variables
//  3. Validate each loaded value
//  4. If validation fails: use default value, log warning, increment metrics
//  5. Never return error - always return a valid configuration
//
// Environment variables:
//   - CRON_SCHEDULE: Cron expression (default: "*/1 * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - CHECK_LOOKBACK: Duration string, e.g., "1h" (default: 1 hour)
//   - SUBSCRIBER_PAGE_SIZE: Integer 1-1000 (default: 100)
//   - CHECK_PARALLELISM: Integer 1-100 (default: 10)
//   - NOTIFY_MAX_CONCURRENT: Integer 1-100 (default: 10)
//   - POLL_TIMEOUT: Duration string, e.g., "30m" (default: 30 minutes)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	warn := func(field string, result config.ConfigLoadResult) {
		if !result.FallbackApplied {
			return
		}
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	result := config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, config.ValidateCronSchedule)
	cfg.CronSchedule = result.Value.(string)
	warn("cron_schedule", result)

	result = config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = result.Value.(string)
	warn("timezone", result)

	result = config.LoadEnvDuration("CHECK_LOOKBACK", cfg.Lookback, func(d time.Duration) error {
		return config.ValidateDuration(d, 1*time.Minute, 24*time.Hour)
	})
	cfg.Lookback = result.Value.(time.Duration)
	warn("lookback", result)

	result = config.LoadEnvInt("SUBSCRIBER_PAGE_SIZE", cfg.PageSize, func(v int) error {
		return config.ValidateIntRange(v, 1, 1000)
	})
	cfg.PageSize = result.Value.(int)
	warn("page_size", result)

	result = config.LoadEnvInt("CHECK_PARALLELISM", cfg.CheckParallelism, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.CheckParallelism = result.Value.(int)
	warn("check_parallelism", result)

	result = config.LoadEnvInt("NOTIFY_MAX_CONCURRENT", cfg.NotifyMaxConcurrent, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.NotifyMaxConcurrent = result.Value.(int)
	warn("notify_max_concurrent", result)

	result = config.LoadEnvDuration("POLL_TIMEOUT", cfg.PollTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 1*time.Minute, 4*time.Hour)
	})
	cfg.PollTimeout = result.Value.(time.Duration)
	warn("poll_timeout", result)

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	warn("health_port", result)

	// Cross-field check: a lookback at or below the cron interval is a
	// misconfiguration the per-field validators cannot see.
	if interval, err := cronInterval(cfg.CronSchedule); err == nil && cfg.Lookback <= interval {
		defaults := DefaultConfig()
		logger.Warn("Configuration fallback applied",
			slog.String("field", "lookback"),
			slog.String("warning", fmt.Sprintf(
				"lookback %v does not exceed cron interval %v, falling back to %v",
				cfg.Lookback, interval, defaults.Lookback)))
		cfg.Lookback = defaults.Lookback
		fallbackApplied = true
		metrics.RecordValidationError("lookback")
		metrics.RecordFallback("lookback", "default")
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}
