package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/handler/http/respond"
	pgRepo "issuepilot/internal/infra/adapter/persistence/postgres"
	"issuepilot/internal/infra/cache"
	"issuepilot/internal/infra/db"
	"issuepilot/internal/infra/httpclient"
	"issuepilot/internal/infra/notifier"
	"issuepilot/internal/infra/provider"
	"issuepilot/internal/infra/queue"
	workerPkg "issuepilot/internal/infra/worker"
	"issuepilot/internal/observability/logging"
	"issuepilot/internal/usecase/notify"
	"issuepilot/internal/usecase/poll"
	pkgConfig "issuepilot/pkg/config"
)

func main() {
	logger := logging.NewLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Create context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("lookback", workerConfig.Lookback),
		slog.Int("page_size", workerConfig.PageSize),
		slog.Int("check_parallelism", workerConfig.CheckParallelism),
		slog.Int("health_port", workerConfig.HealthPort))

	// Result cache and notification queue, in-memory or Redis per env
	redisClient := initRedis(logger)
	resultCache := initCache(logger, redisClient)
	jobQueue := initQueue(logger, redisClient)

	// Provider registry (GitHub only for now)
	providers := initProviders(logger, resultCache)

	// Notification dispatcher with its channels
	channels := initChannels(logger)
	dispatcher := notify.NewDispatcher(jobQueue, channels, workerConfig.NotifyMaxConcurrent, logger)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("notification dispatcher exited", slog.Any("error", err))
		}
	}()
	logger.Info("notification dispatcher initialized",
		slog.Int("channels", len(channels)),
		slog.Int("max_concurrent", workerConfig.NotifyMaxConcurrent))

	// Start metrics HTTP server
	startMetricsServer(ctx, logger, dispatcher)

	// Start health check server
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	registry := pgRepo.NewSubscriptionRepo(database)
	pollService := poll.NewService(registry, providers, dispatcher, poll.Config{
		PageSize:    workerConfig.PageSize,
		Lookback:    workerConfig.Lookback,
		Parallelism: workerConfig.CheckParallelism,
	})

	startCronWorker(ctx, logger, pollService, workerConfig, workerMetrics, healthServer)

	// Drain in-flight notifications before exiting
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown failed", slog.Any("error", err))
	}
}

// initDatabase opens the database connection and applies migrations.
func initDatabase(logger *slog.Logger) *sql.DB {
	database, err := db.Open(logger)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// initRedis creates a Redis client when REDIS_ADDR is set, nil otherwise.
func initRedis(logger *slog.Logger) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       pkgConfig.GetEnvInt("REDIS_DB", 0),
	})
	logger.Info("redis client initialized", slog.String("addr", addr))
	return client
}

// initCache selects the result cache backend: Redis when available,
// bounded in-memory otherwise.
func initCache(logger *slog.Logger, redisClient *redis.Client) cache.Cache {
	if redisClient != nil && pkgConfig.GetEnvString("CACHE_BACKEND", "redis") == "redis" {
		logger.Info("result cache initialized", slog.String("backend", "redis"))
		return cache.NewRedisCache(redisClient, "issuepilot")
	}
	logger.Info("result cache initialized", slog.String("backend", "memory"))
	return cache.NewMemoryCache(cache.MemoryCacheConfig{})
}

// initQueue selects the notification queue backend: a durable Redis list
// when available, a process-local channel otherwise.
func initQueue(logger *slog.Logger, redisClient *redis.Client) queue.NotificationQueue {
	if redisClient != nil && pkgConfig.GetEnvString("QUEUE_BACKEND", "redis") == "redis" {
		logger.Info("notification queue initialized", slog.String("backend", "redis"))
		return queue.NewRedisQueue(redisClient, "notification_jobs")
	}
	logger.Info("notification queue initialized", slog.String("backend", "memory"))
	return queue.NewMemoryQueue(pkgConfig.GetEnvInt("QUEUE_CAPACITY", 1024))
}

// initProviders builds the provider registry with the shared rate-limited
// HTTP client and result cache.
func initProviders(logger *slog.Logger, resultCache cache.Cache) provider.Registry {
	client := httpclient.NewClient(httpclient.DefaultConfig("github"), logger)
	baseURL := pkgConfig.GetEnvString("GITHUB_API_BASE_URL", "https://api.github.com")
	github := provider.NewGitHub(client, resultCache, baseURL, logger)
	return provider.Registry{
		entity.RepositoryTypeGitHub: github,
	}
}

// initChannels builds the notification channel list from the environment.
// Without an enabled channel the dispatcher still drains the queue through
// the no-op channel, so producers never block on a misconfigured worker.
func initChannels(logger *slog.Logger) []notify.Channel {
	emailConfig := loadEmailConfig(logger)
	if !emailConfig.Enabled {
		logger.Info("email channel disabled, using noop channel")
		return []notify.Channel{notifier.NewNoOpChannel()}
	}

	logger.Info("email channel initialized",
		slog.String("host", emailConfig.Host),
		slog.Int("port", emailConfig.Port),
		slog.String("from", emailConfig.From))
	return []notify.Channel{notifier.NewEmailChannel(emailConfig, logger)}
}

// loadEmailConfig loads SMTP configuration from environment variables.
//
// Environment variables:
//   - EMAIL_ENABLED: Boolean flag to enable email notifications (default: false)
//   - SMTP_HOST: SMTP server hostname (required if enabled)
//   - SMTP_PORT: SMTP server port (default: 587)
//   - SMTP_USERNAME / SMTP_PASSWORD: Optional SMTP credentials
//   - EMAIL_FROM: Sender address (required if enabled)
func loadEmailConfig(logger *slog.Logger) notifier.EmailConfig {
	if !pkgConfig.GetEnvBool("EMAIL_ENABLED", false) {
		return notifier.EmailConfig{Enabled: false}
	}

	host := os.Getenv("SMTP_HOST")
	from := os.Getenv("EMAIL_FROM")
	if host == "" || from == "" {
		logger.Warn("SMTP_HOST and EMAIL_FROM are required, disabling email notifications")
		return notifier.EmailConfig{Enabled: false}
	}

	return notifier.EmailConfig{
		Enabled:  true,
		Host:     host,
		Port:     pkgConfig.GetEnvInt("SMTP_PORT", 587),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     from,
		Timeout:  pkgConfig.GetEnvDuration("SMTP_TIMEOUT", 10*time.Second),
	}
}

// startCronWorker starts the cron scheduler and runs the fan-out cycle
// periodically until the context is cancelled.
func startCronWorker(ctx context.Context, logger *slog.Logger, svc *poll.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.CronSchedule, func() {
		runPollCycle(logger, svc, cfg, metrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	// Mark as ready after cron is set up
	healthServer.SetReady(true)
	logger.Info("worker started", slog.String("schedule", cfg.CronSchedule), slog.String("timezone", cfg.Timezone))

	<-ctx.Done()
	healthServer.SetReady(false)

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("cron scheduler stopped")
}

// runPollCycle executes a single fan-out cycle with timeout and error handling.
func runPollCycle(logger *slog.Logger, svc *poll.Service, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	startTime := time.Now()
	logger.Info("fan-out cycle started")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PollTimeout)
	defer cancel()

	stats, err := svc.CheckAllSubscriptions(ctx)
	if err != nil {
		// 機密情報をマスクしてログ出力
		logger.Error("fan-out cycle failed", slog.String("error", respond.SanitizeError(err)))
		metrics.RecordJobRun("failure")
		metrics.RecordJobDuration(time.Since(startTime).Seconds())
		return
	}

	metrics.RecordJobRun("success")
	metrics.RecordJobDuration(time.Since(startTime).Seconds())
	metrics.RecordSubscribersProcessed(stats.Subscribers)
	metrics.RecordLastSuccess()

	logger.Info("fan-out cycle completed",
		slog.Int64("subscribers", stats.Subscribers),
		slog.Int64("checked", stats.Checked),
		slog.Int64("updated", stats.Updated),
		slog.Int64("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
	)
}
