package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns defines the list of patterns for dynamic routes.
// Patterns are evaluated in order from most specific to least specific.
// Pre-compiled at initialization for optimal performance.
var pathPatterns = []*PathPattern{
	// Issue timeline routes
	{Pattern: regexp.MustCompile(`^/repositories/[^/]+/issues/[^/]+/timeline$`), Template: "/repositories/:repo/issues/:issue/timeline"},
	{Pattern: regexp.MustCompile(`^/repositories/[^/]+$`), Template: "/repositories/:repo"},

	// Subscription routes
	{Pattern: regexp.MustCompile(`^/subscriptions/[^/]+$`), Template: "/subscriptions/:repo"},
}

// NormalizePath normalizes dynamic URL paths to prevent metrics label cardinality explosion.
// It converts paths with repository or issue identifiers (e.g., /subscriptions/requests)
// to template format (e.g., /subscriptions/:repo). Static paths remain unchanged.
//
// Examples:
//
//	NormalizePath("/subscriptions/requests")                    // "/subscriptions/:repo"
//	NormalizePath("/repositories/requests/issues/42/timeline")  // "/repositories/:repo/issues/:issue/timeline"
//	NormalizePath("/health")                                    // "/health" (unchanged)
//	NormalizePath("/metrics")                                   // "/metrics" (unchanged)
//
// Query parameters and trailing slashes are handled:
//
//	NormalizePath("/subscriptions/requests?user_id=1")  // "/subscriptions/:repo"
//	NormalizePath("/subscriptions/requests/")           // "/subscriptions/:repo"
func NormalizePath(path string) string {
	// Strip query parameters if present
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}

	// Strip trailing slash if present (except for root path)
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	// Try to match against known patterns
	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}

	// No match found, return original path
	// This is safe - static paths like /health and /metrics pass through unchanged
	return path
}
