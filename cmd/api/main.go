package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"issuepilot/internal/domain/entity"
	handlerhttp "issuepilot/internal/handler/http"
	"issuepilot/internal/handler/http/requestid"
	"issuepilot/internal/handler/http/subscription"
	pgRepo "issuepilot/internal/infra/adapter/persistence/postgres"
	"issuepilot/internal/infra/cache"
	"issuepilot/internal/infra/db"
	"issuepilot/internal/infra/httpclient"
	"issuepilot/internal/infra/provider"
	"issuepilot/internal/observability/logging"
	subUC "issuepilot/internal/usecase/subscription"
	pkgConfig "issuepilot/pkg/config"
)

const (
	requestTimeout  = 30 * time.Second
	maxRequestBody  = 1 << 20 // 1MB
	shutdownTimeout = 10 * time.Second
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

	resultCache := initCache(logger)
	providers := initProviders(logger, resultCache)
	registry := pgRepo.NewSubscriptionRepo(database)
	svc := subUC.NewService(registry, providers)

	handler := buildHandler(logger, database, svc)

	addr := ":" + pkgConfig.GetEnvString("API_PORT", "8080")
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("api server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("api server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("api server stopped")
}

// buildHandler assembles the route mux and wraps it in the middleware chain.
// The chain (outermost first): request ID, input validation, request body
// limit, timeout, panic recovery, logging, rate limiting, metrics.
func buildHandler(logger *slog.Logger, database *sql.DB, svc *subUC.Service) http.Handler {
	mux := http.NewServeMux()
	subscription.Register(mux, svc)

	mux.Handle("GET    /health", &handlerhttp.HealthHandler{
		DB:      database,
		Version: pkgConfig.GetEnvString("APP_VERSION", "dev"),
	})
	mux.Handle("GET    /ready", &handlerhttp.ReadyHandler{DB: database})
	mux.Handle("GET    /live", &handlerhttp.LiveHandler{})
	mux.Handle("GET    /metrics", handlerhttp.MetricsHandler())

	rateLimiter := handlerhttp.NewRateLimiter(
		pkgConfig.GetEnvInt("API_RATE_LIMIT", 60),
		time.Minute,
	)

	var handler http.Handler = mux
	handler = handlerhttp.MetricsMiddleware(handler)
	handler = rateLimiter.Limit(handler)
	handler = handlerhttp.Logging(logger)(handler)
	handler = handlerhttp.Recover(logger)(handler)
	handler = handlerhttp.Timeout(requestTimeout)(handler)
	handler = handlerhttp.LimitRequestBody(maxRequestBody)(handler)
	handler = handlerhttp.InputValidation()(handler)
	handler = requestid.Middleware(handler)
	return handler
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

// initCache selects the result cache backend: Redis when REDIS_ADDR is set,
// bounded in-memory otherwise. The API shares the cache keyspace with the
// worker so existence checks done at subscribe time benefit polling too.
func initCache(logger *slog.Logger) cache.Cache {
	addr := os.Getenv("REDIS_ADDR")
	if addr != "" && pkgConfig.GetEnvString("CACHE_BACKEND", "redis") == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       pkgConfig.GetEnvInt("REDIS_DB", 0),
		})
		logger.Info("result cache initialized", slog.String("backend", "redis"))
		return cache.NewRedisCache(client, "issuepilot")
	}
	logger.Info("result cache initialized", slog.String("backend", "memory"))
	return cache.NewMemoryCache(cache.MemoryCacheConfig{})
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
