// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes retry logic with backoff used by the HTTP client and the repository
// check jobs.
//
// Usage Example:
//
//	retryConfig := retry.DefaultConfig()
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience
