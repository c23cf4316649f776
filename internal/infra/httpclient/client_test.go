package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig returns a client policy with negligible backoff so retry
// paths run fast in tests.
func testConfig() Config {
	return Config{
		Provider:          "github",
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil)

	resp, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
}

func TestDo_RetriesServerErrorsUpToBudget(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil)

	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
	require.Error(t, err)

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusServiceUnavailable, tErr.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "5xx responses should consume the full attempt budget")
}

func TestDo_SucceedsAfterTransientServerError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil)

	resp, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDo_RateLimitFailsWithoutRetry(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "429 with exhausted quota", status: http.StatusTooManyRequests},
		{name: "403 with exhausted quota", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(testConfig(), nil)

			_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
			require.Error(t, err)
			assert.True(t, IsRateLimit(err), "expected a rate limit error, got %v", err)

			var rlErr *RateLimitError
			require.ErrorAs(t, err, &rlErr)
			assert.Equal(t, "github", rlErr.Provider)
			assert.Equal(t, int32(1), attempts.Load(), "quota exhaustion must not consume the retry budget")
		})
	}
}

func TestDo_ForbiddenWithRemainingQuotaIsNotRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil)

	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
	require.Error(t, err)
	assert.False(t, IsRateLimit(err))

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, http.StatusForbidden, tErr.StatusCode)
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil)

	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDo_SendsClonedHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(testConfig(), nil)

	header := make(http.Header)
	header.Set("Authorization", "Bearer token-a")
	header.Set("Accept", "application/vnd.github+json")

	_, err := client.Do(context.Background(), http.MethodGet, server.URL, header)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-a", got.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", got.Get("Accept"))

	// Caller's header set survives untouched for concurrent reuse
	assert.Equal(t, "Bearer token-a", header.Get("Authorization"))
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := testConfig()
	config.BaseDelay = time.Minute
	client := NewClient(config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Do(ctx, http.MethodGet, server.URL, nil)
		done <- err
	}()

	// Let the first attempt fail, then cancel during the backoff wait
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&TransportError{StatusCode: 404}))
	assert.False(t, IsNotFound(&TransportError{StatusCode: 500}))
	assert.False(t, IsNotFound(errors.New("plain error")))
	assert.False(t, IsNotFound(nil))
}
