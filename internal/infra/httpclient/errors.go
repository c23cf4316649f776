package httpclient

import (
	"errors"
	"fmt"
)

// RateLimitError reports that the provider's request quota is exhausted.
// It is never retried by the client; callers decide whether the
// surrounding job retries after a delay.
type RateLimitError struct {
	Provider string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// TransportError reports a non-2xx response that survived the retry
// budget, or a non-retryable client error.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimit reports whether err is a provider rate-limit exhaustion.
func IsRateLimit(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// IsNotFound reports whether err is a transport error with a 404 status.
func IsNotFound(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr) && tErr.StatusCode == 404
}
