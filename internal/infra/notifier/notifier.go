// Package notifier provides notification channel implementations for the
// dispatcher in internal/usecase/notify. Channels handle their own rate
// limiting, retries and error logging; the dispatcher only sees the final
// outcome of a delivery.
//
// The package includes an SMTP email channel and a no-op channel for when
// notifications are disabled.
package notifier
