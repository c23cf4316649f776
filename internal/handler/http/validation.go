package http

import (
	"errors"
	"net/http"

	"issuepilot/internal/handler/http/respond"
)

// Request limits. GitHub repository owners and names are at most 39 and
// 100 characters, and provider tokens stay well under 1KB, so these caps
// only ever reject garbage.
const (
	maxTokenHeaderBytes = 4096
	maxPathBytes        = 1024
)

// InputValidation returns middleware that rejects oversized request
// metadata before any handler runs. Body size is capped separately by
// LimitRequestBody.
func InputValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.Header.Get("X-Provider-Token")) > maxTokenHeaderBytes {
				respond.SafeError(w, http.StatusBadRequest,
					errors.New("provider token header must be under 4096 bytes"))
				return
			}
			if len(r.Header.Get("Authorization")) > maxTokenHeaderBytes {
				respond.SafeError(w, http.StatusBadRequest,
					errors.New("authorization header must be under 4096 bytes"))
				return
			}
			if len(r.URL.Path) > maxPathBytes {
				respond.JSON(w, http.StatusRequestURITooLong,
					map[string]string{"error": "request path too long"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
