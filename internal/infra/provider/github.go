package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/cache"
	"issuepilot/internal/infra/httpclient"
	"issuepilot/internal/observability/metrics"
)

const (
	githubAPIVersion = "2022-11-28"

	// Page sizes: the has-updates probe only needs to know whether the
	// first page is non-empty; full listings use the API maximum.
	probePageSize = 1
	listPageSize  = 100
)

// Cache operation kinds, the last segment of every cache key.
const (
	opExists   = "exists"
	opUpdates  = "updates"
	opIssues   = "issues"
	opTimeline = "timeline"
)

// HTTPDoer is the slice of httpclient.Client the GitHub provider needs.
type HTTPDoer interface {
	Do(ctx context.Context, method, url string, header http.Header) (*httpclient.Response, error)
}

// GitHub implements Provider against the GitHub REST API.
type GitHub struct {
	baseURL string
	client  HTTPDoer
	cache   cache.Cache
	logger  *slog.Logger
}

// NewGitHub creates a GitHub provider. baseURL defaults to the public
// API endpoint; tests point it at an httptest server.
func NewGitHub(client HTTPDoer, resultCache cache.Cache, baseURL string, logger *slog.Logger) *GitHub {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHub{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   resultCache,
		logger:  logger,
	}
}

// header builds a fresh header set for one request. Never shared or
// mutated across requests; tokens differ per subscriber.
func (g *GitHub) header(token string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/vnd.github+json")
	h.Set("Authorization", "Bearer "+token)
	h.Set("X-GitHub-Api-Version", githubAPIVersion)
	return h
}

// RepositoryExists implements Provider.RepositoryExists.
// Results are cached briefly so a subscribe burst for a popular
// repository costs one upstream call.
func (g *GitHub) RepositoryExists(ctx context.Context, owner, name, token string) (bool, error) {
	key := cache.Key("github", owner, name, opExists)
	if raw, ok := g.cacheGet(ctx, key, opExists); ok {
		return string(raw) == "true", nil
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s", g.baseURL, url.PathEscape(owner), url.PathEscape(name))
	_, err := g.client.Do(ctx, http.MethodGet, endpoint, g.header(token))
	if err != nil {
		if httpclient.IsNotFound(err) {
			g.cacheSet(ctx, key, []byte("false"), cache.TTLExistence)
			return false, nil
		}
		return false, fmt.Errorf("check repository %s/%s: %w", owner, name, err)
	}

	g.cacheSet(ctx, key, []byte("true"), cache.TTLExistence)
	return true, nil
}

// HasUpdatedIssues implements Provider.HasUpdatedIssues. Only the first
// page with a single item is fetched: the answer is a boolean, not a
// listing.
func (g *GitHub) HasUpdatedIssues(ctx context.Context, owner, name, token string, since time.Time) (bool, error) {
	key := cache.Key("github", owner, name, opUpdates)
	if raw, ok := g.cacheGet(ctx, key, opUpdates); ok {
		return string(raw) == "true", nil
	}

	endpoint := g.issuesURL(owner, name, since, probePageSize)
	resp, err := g.client.Do(ctx, http.MethodGet, endpoint, g.header(token))
	if err != nil {
		return false, fmt.Errorf("check updated issues %s/%s: %w", owner, name, err)
	}

	var page []json.RawMessage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return false, fmt.Errorf("decode issues page: %w", err)
	}

	changed := len(page) > 0
	g.cacheSet(ctx, key, []byte(fmt.Sprintf("%t", changed)), cache.TTLUpdates)
	return changed, nil
}

// ListUpdatedIssues implements Provider.ListUpdatedIssues. It follows
// the Link rel="next" chain; a failed or rate-limited page stops
// pagination and whatever accumulated so far is returned. Partial
// results are not cached, so the next cycle re-attempts the full list.
func (g *GitHub) ListUpdatedIssues(ctx context.Context, owner, name, token string, since time.Time) ([]*entity.Issue, error) {
	key := cache.Key("github", owner, name, opIssues)
	if raw, ok := g.cacheGet(ctx, key, opIssues); ok {
		var issues []*entity.Issue
		if err := json.Unmarshal(raw, &issues); err == nil {
			return issues, nil
		}
	}

	var issues []*entity.Issue
	complete := g.paginate(ctx, g.issuesURL(owner, name, since, listPageSize), token, func(body []byte) error {
		var page []*entity.Issue
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode issues page: %w", err)
		}
		issues = append(issues, page...)
		return nil
	})

	if complete {
		if raw, err := json.Marshal(issues); err == nil {
			g.cacheSet(ctx, key, raw, cache.TTLUpdates)
		}
	}
	return issues, nil
}

// IssueTimeline implements Provider.IssueTimeline.
func (g *GitHub) IssueTimeline(ctx context.Context, owner, name, issueID, token string) ([]*entity.TimelineEvent, error) {
	key := cache.Key("github", owner, name, issueID, opTimeline)
	if raw, ok := g.cacheGet(ctx, key, opTimeline); ok {
		var events []*entity.TimelineEvent
		if err := json.Unmarshal(raw, &events); err == nil {
			return events, nil
		}
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues/%s/timeline?per_page=%d",
		g.baseURL, url.PathEscape(owner), url.PathEscape(name), url.PathEscape(issueID), listPageSize)

	var events []*entity.TimelineEvent
	complete := g.paginate(ctx, endpoint, token, func(body []byte) error {
		var page []timelineEventDTO
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("decode timeline page: %w", err)
		}
		for _, dto := range page {
			events = append(events, dto.toEntity())
		}
		return nil
	})

	if complete {
		if raw, err := json.Marshal(events); err == nil {
			g.cacheSet(ctx, key, raw, cache.TTLTimeline)
		}
	}
	return events, nil
}

// paginate fetches pages starting at endpoint, handing each body to
// collect, until the Link chain ends or a page fails. The return value
// reports whether the full chain was consumed. Page failures are logged
// and swallowed: listings feed best-effort notification flows, so a
// partial answer beats none.
func (g *GitHub) paginate(ctx context.Context, endpoint, token string, collect func(body []byte) error) bool {
	for endpoint != "" {
		resp, err := g.client.Do(ctx, http.MethodGet, endpoint, g.header(token))
		if err != nil {
			g.logger.Warn("pagination stopped, returning partial result",
				slog.String("provider", "github"),
				slog.String("url", endpoint),
				slog.Any("error", err))
			return false
		}
		if err := collect(resp.Body); err != nil {
			g.logger.Warn("pagination stopped on malformed page",
				slog.String("provider", "github"),
				slog.String("url", endpoint),
				slog.Any("error", err))
			return false
		}
		endpoint = nextPageURL(resp.Header.Get("Link"))
	}
	return true
}

func (g *GitHub) issuesURL(owner, name string, since time.Time, perPage int) string {
	query := url.Values{}
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("per_page", fmt.Sprintf("%d", perPage))
	query.Set("state", "open")
	return fmt.Sprintf("%s/repos/%s/%s/issues?%s",
		g.baseURL, url.PathEscape(owner), url.PathEscape(name), query.Encode())
}

func (g *GitHub) cacheGet(ctx context.Context, key, operation string) ([]byte, bool) {
	if g.cache == nil {
		return nil, false
	}
	raw, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("cache get failed, falling through to network",
			slog.String("key", key),
			slog.Any("error", err))
		return nil, false
	}
	metrics.RecordCacheLookup(operation, ok)
	return raw, ok
}

func (g *GitHub) cacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, value, ttl); err != nil {
		g.logger.Warn("cache set failed",
			slog.String("key", key),
			slog.Any("error", err))
	}
}

// timelineEventDTO maps the GitHub timeline payload onto the domain event.
type timelineEventDTO struct {
	Event string `json:"event"`
	Actor struct {
		Login string `json:"login"`
	} `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

func (d timelineEventDTO) toEntity() *entity.TimelineEvent {
	return &entity.TimelineEvent{
		Event:     d.Event,
		Actor:     d.Actor.Login,
		CreatedAt: d.CreatedAt,
	}
}

// nextPageURL extracts the rel="next" target from a Link response
// header, e.g. `<https://api.github.com/...&page=2>; rel="next",
// <...>; rel="last"`. Returns "" when there is no next page.
func nextPageURL(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(section[0]), "<>")
		for _, param := range section[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
