package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	pkgConfig "issuepilot/pkg/config"
)

// Pool defaults. The API serves three small endpoints and the worker's
// fan-out runs one paged registry query per cycle, so a modest pool is
// plenty; both can be raised per deployment through the environment.
const (
	defaultMaxOpenConns    = 15
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 1 * time.Hour
	defaultConnMaxIdleTime = 15 * time.Minute
)

// Open connects to the Postgres instance named by DATABASE_URL, applies
// the pool settings and verifies the connection with a short ping.
func Open(logger *slog.Logger) (*sql.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	pool, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := pkgConfig.GetEnvInt("DB_MAX_OPEN_CONNS", defaultMaxOpenConns)
	maxIdle := pkgConfig.GetEnvInt("DB_MAX_IDLE_CONNS", defaultMaxIdleConns)
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(pkgConfig.GetEnvDuration("DB_CONN_MAX_LIFETIME", defaultConnMaxLifetime))
	pool.SetConnMaxIdleTime(pkgConfig.GetEnvDuration("DB_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database pool ready",
		slog.Int("max_open_conns", maxOpen),
		slog.Int("max_idle_conns", maxIdle))
	return pool, nil
}
