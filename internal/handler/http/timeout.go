package http

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Timeout returns middleware that bounds how long one request may run.
// The handler gets a context that expires after limit; if it has not
// produced a response by then, the client receives 504 and any late
// writes from the handler goroutine are discarded.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			gw := &deadlineWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				// expire は、ハンドラがまだ何も書いていない場合のみ 504 を書く
				if gw.expire() {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					_, _ = w.Write([]byte(`{"error":"request timeout"}`))
				}
			}
		})
	}
}

// deadlineWriter serializes the handler goroutine and the timeout branch
// so exactly one of them writes the response.
type deadlineWriter struct {
	http.ResponseWriter

	mu      sync.Mutex
	wrote   bool
	expired bool
}

// expire marks the deadline as passed. It reports whether the timeout
// branch may still write the 504 response.
func (d *deadlineWriter) expire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expired = true
	return !d.wrote
}

func (d *deadlineWriter) WriteHeader(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expired || d.wrote {
		return
	}
	d.wrote = true
	d.ResponseWriter.WriteHeader(status)
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.expired {
		return 0, http.ErrHandlerTimeout
	}
	if !d.wrote {
		d.wrote = true
		d.ResponseWriter.WriteHeader(http.StatusOK)
	}
	return d.ResponseWriter.Write(p)
}
