package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"issuepilot/internal/domain/entity"
)

// EmailConfig contains configuration for SMTP email notifications.
type EmailConfig struct {
	// Enabled indicates whether email notifications are enabled
	Enabled bool

	// Host is the SMTP server hostname
	Host string

	// Port is the SMTP server port
	Port int

	// Username is the SMTP authentication username (empty disables auth)
	Username string

	// Password is the SMTP authentication password
	Password string

	// From is the sender address for all notification emails
	From string

	// Timeout is the timeout for one SMTP delivery
	Timeout time.Duration
}

// EmailChannel delivers notification jobs as plain-text emails over SMTP.
type EmailChannel struct {
	config      EmailConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewEmailChannel creates a new EmailChannel with the specified configuration.
//
// The channel is initialized with a rate limiter set to 2 requests/second
// with a burst of 5, which is conservative for a typical SMTP relay.
func NewEmailChannel(config EmailConfig, logger *slog.Logger) *EmailChannel {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailChannel{
		config:      config,
		rateLimiter: NewRateLimiter(2.0, 5),
		logger:      logger,
	}
}

// Name implements the channel interface.
func (e *EmailChannel) Name() string { return "email" }

// IsEnabled implements the channel interface.
func (e *EmailChannel) IsEnabled() bool { return e.config.Enabled }

const (
	emailSubject = "GitHub Repository Updated"

	emailMaxAttempts = 2
	emailRetryDelay  = 5 * time.Second
)

// buildMessage renders the RFC 5322 message for a notification job.
//
// The body points the subscriber at the issue list of the repository that
// changed rather than embedding issue details, so a stale email never shows
// stale content.
func (e *EmailChannel) buildMessage(job entity.NotificationJob) []byte {
	issuesURL := fmt.Sprintf("https://github.com/repos/%s/%s/issues", job.Owner, job.RepositoryName)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", job.RecipientEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", emailSubject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Repository %s/%s has updated issues.\r\n", job.Owner, job.RepositoryName)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "See what changed: %s\r\n", issuesURL)
	return []byte(b.String())
}

// sendOnce performs a single SMTP delivery.
//
// The connection is dialed with the context so cancellation interrupts a
// slow server, and the per-delivery timeout is applied as a connection
// deadline covering the whole SMTP conversation.
func (e *EmailChannel) sendOnce(ctx context.Context, job entity.NotificationJob) error {
	addr := net.JoinHostPort(e.config.Host, fmt.Sprintf("%d", e.config.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(e.config.Timeout)); err != nil {
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if e.config.Username != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(job.RecipientEmail); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(e.buildMessage(job)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write smtp message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close smtp message: %w", err)
	}

	return client.Quit()
}

// Send delivers one notification job by email.
//
// It performs the following steps:
//  1. Generate unique delivery_id for tracing
//  2. Apply rate limiting to avoid overwhelming the SMTP relay
//  3. Deliver with retry (2 attempts, fixed 5 second delay)
//
// SMTP failures are treated as transient; the recipient address comes from
// a validated subscriber record, so a permanent rejection is rare enough
// that a second attempt costs nothing.
func (e *EmailChannel) Send(ctx context.Context, job entity.NotificationJob) error {
	deliveryID := uuid.New().String()

	e.logger.Info("starting email notification",
		slog.String("delivery_id", deliveryID),
		slog.String("repository", job.RepositoryName),
		slog.String("recipient", job.RecipientEmail))

	if err := e.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= emailMaxAttempts; attempt++ {
		err := e.sendOnce(ctx, job)
		if err == nil {
			e.logger.Info("email notification successful",
				slog.String("delivery_id", deliveryID),
				slog.String("recipient", job.RecipientEmail),
				slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		e.logger.Warn("email delivery failed",
			slog.String("delivery_id", deliveryID),
			slog.String("recipient", job.RecipientEmail),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		if attempt < emailMaxAttempts {
			select {
			case <-time.After(emailRetryDelay):
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("email notification failed after %d attempts: %w", emailMaxAttempts, lastErr)
}
