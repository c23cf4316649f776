// Package httpclient implements the rate-limit-aware HTTP client used for
// all provider API calls. It retries transient server errors with backoff,
// signals provider quota exhaustion immediately, paces outbound requests,
// and trips a circuit breaker when a provider is persistently failing.
package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"issuepilot/internal/observability/metrics"
)

const rateLimitRemainingHeader = "X-RateLimit-Remaining"

// Response is the subset of an HTTP response the provider layer consumes.
// The body is fully read and the connection returned to the pool before
// Response is handed back.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Config holds the retry and pacing policy for a Client.
type Config struct {
	// Provider is the provider name used in errors, logs and metrics
	Provider string

	// MaxAttempts is the attempt budget for 5xx responses (including the
	// first attempt)
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt; it is
	// multiplied by the attempt number for subsequent waits
	BaseDelay time.Duration

	// Timeout bounds a single HTTP round trip
	Timeout time.Duration

	// RequestsPerSecond and Burst configure outbound pacing so one worker
	// cannot burn the shared provider quota in a burst
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the client policy used for GitHub API calls.
func DefaultConfig(provider string) Config {
	return Config{
		Provider:          provider,
		MaxAttempts:       3,
		BaseDelay:         1 * time.Second,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Client performs provider HTTP calls with retry, pacing and breaker
// policy applied. It is safe for concurrent use; all check jobs of one
// provider share a single Client and its connection pool.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a Client with a pooled transport enforcing TLS 1.2+.
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 1 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Provider,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
		// Only infrastructure-level failures should trip the breaker.
		// 4xx answers and quota exhaustion are well-formed provider
		// responses, not signs of an outage.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var tErr *TransportError
			if errors.As(err, &tErr) && tErr.StatusCode < 500 {
				return true
			}
			return IsRateLimit(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Client{
		config: config,
		http: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker: breaker,
		logger:  logger,
	}
}

// Do performs one logical request. Server errors (5xx) are retried up to
// the attempt budget with the configured backoff. A 429 or 403 carrying
// X-RateLimit-Remaining: 0 fails immediately with *RateLimitError without
// consuming the retry budget. Any other non-2xx status fails with
// *TransportError. Headers are cloned per attempt; callers may reuse a
// header set across concurrent requests.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header) (*Response, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, method, url, header)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, header http.Header) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("outbound pacing: %w", err)
		}

		resp, err := c.doOnce(ctx, method, url, header, attempt)
		if err != nil {
			lastErr = err
			if !c.retryAfter(ctx, attempt, err) {
				return nil, err
			}
			continue
		}

		// Rate limit exhaustion: fail fast, the retry budget stays unused
		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden) &&
			resp.Header.Get(rateLimitRemainingHeader) == "0" {
			metrics.RecordRateLimitHit(c.config.Provider)
			return nil, &RateLimitError{Provider: c.config.Provider}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		lastErr = &TransportError{StatusCode: resp.StatusCode, Body: string(resp.Body)}

		// Only server-side failures are worth another attempt
		if resp.StatusCode < 500 {
			return nil, lastErr
		}
		if !c.retryAfter(ctx, attempt, lastErr) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// retryAfter waits the backoff delay if another attempt is allowed.
// It returns false when the budget is spent or the context is done.
func (c *Client) retryAfter(ctx context.Context, attempt int, cause error) bool {
	if attempt >= c.config.MaxAttempts {
		return false
	}

	delay := c.config.BaseDelay * time.Duration(attempt)
	c.logger.Warn("provider request failed, retrying",
		slog.String("provider", c.config.Provider),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", c.config.MaxAttempts),
		slog.Duration("delay", delay),
		slog.Any("error", cause))

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// doOnce performs a single attempt and logs it. A fresh request and a
// cloned header set are built every time; nothing mutable is shared
// between attempts or callers.
func (c *Client) doOnce(ctx context.Context, method, url string, header http.Header, attempt int) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	if header != nil {
		req.Header = header.Clone()
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordProviderRequest(c.config.Provider, 0)
		c.logger.Warn("provider request error",
			slog.String("provider", c.config.Provider),
			slog.String("method", method),
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	metrics.RecordProviderRequest(c.config.Provider, resp.StatusCode)
	c.logger.Info("provider request",
		slog.String("provider", c.config.Provider),
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
		slog.String("rate_limit_remaining", resp.Header.Get(rateLimitRemainingHeader)),
		slog.Int("attempt", attempt),
		slog.Duration("duration", duration))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
