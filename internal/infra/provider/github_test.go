package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/cache"
	"issuepilot/internal/infra/httpclient"
)

// fakeDoer routes requests to canned responses keyed by URL and counts
// the calls made per URL.
type fakeDoer struct {
	responses map[string]*httpclient.Response
	errs      map[string]error
	calls     atomic.Int32
	lastURL   string
}

func (f *fakeDoer) Do(_ context.Context, _ string, url string, _ http.Header) (*httpclient.Response, error) {
	f.calls.Add(1)
	f.lastURL = url
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	resp, ok := f.responses[url]
	if !ok {
		return nil, &httpclient.TransportError{StatusCode: http.StatusNotFound}
	}
	return resp, nil
}

func jsonResponse(body string, header http.Header) *httpclient.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &httpclient.Response{StatusCode: http.StatusOK, Header: header, Body: []byte(body)}
}

func newTestCache() *cache.MemoryCache {
	return cache.NewMemoryCache(cache.MemoryCacheConfig{})
}

func TestRepositoryExists(t *testing.T) {
	doer := &fakeDoer{
		responses: map[string]*httpclient.Response{
			"https://api.test/repos/octocat/hello": jsonResponse(`{"id":1}`, nil),
		},
	}
	github := NewGitHub(doer, newTestCache(), "https://api.test", nil)

	exists, err := github.RepositoryExists(context.Background(), "octocat", "hello", "tok")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRepositoryExists_NotFound(t *testing.T) {
	doer := &fakeDoer{
		errs: map[string]error{
			"https://api.test/repos/octocat/gone": &httpclient.TransportError{StatusCode: http.StatusNotFound},
		},
	}
	github := NewGitHub(doer, newTestCache(), "https://api.test", nil)

	exists, err := github.RepositoryExists(context.Background(), "octocat", "gone", "tok")
	require.NoError(t, err, "a missing repository is an answer, not a failure")
	assert.False(t, exists)
}

func TestRepositoryExists_CachesResult(t *testing.T) {
	doer := &fakeDoer{
		responses: map[string]*httpclient.Response{
			"https://api.test/repos/octocat/hello": jsonResponse(`{"id":1}`, nil),
		},
	}
	github := NewGitHub(doer, newTestCache(), "https://api.test", nil)

	for i := 0; i < 3; i++ {
		exists, err := github.RepositoryExists(context.Background(), "octocat", "hello", "tok")
		require.NoError(t, err)
		assert.True(t, exists)
	}
	assert.Equal(t, int32(1), doer.calls.Load(), "repeated existence checks should hit the cache")
}

func TestRepositoryExists_RateLimitPropagates(t *testing.T) {
	doer := &fakeDoer{
		errs: map[string]error{
			"https://api.test/repos/octocat/hello": &httpclient.RateLimitError{Provider: "github"},
		},
	}
	github := NewGitHub(doer, newTestCache(), "https://api.test", nil)

	_, err := github.RepositoryExists(context.Background(), "octocat", "hello", "tok")
	require.Error(t, err)
	assert.True(t, httpclient.IsRateLimit(err))
}

func TestHasUpdatedIssues(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "updated issues present", body: `[{"number":7}]`, want: true},
		{name: "no updated issues", body: `[]`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{responses: map[string]*httpclient.Response{}}
			github := NewGitHub(doer, newTestCache(), "https://api.test", nil)
			probeURL := github.issuesURL("octocat", "hello", since, probePageSize)
			doer.responses[probeURL] = jsonResponse(tt.body, nil)

			changed, err := github.HasUpdatedIssues(context.Background(), "octocat", "hello", "tok", since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
		})
	}
}

func TestHasUpdatedIssues_UsesSingleItemProbe(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doer := &fakeDoer{responses: map[string]*httpclient.Response{}}
	github := NewGitHub(doer, nil, "https://api.test", nil)

	probeURL := github.issuesURL("octocat", "hello", since, probePageSize)
	doer.responses[probeURL] = jsonResponse(`[]`, nil)

	_, err := github.HasUpdatedIssues(context.Background(), "octocat", "hello", "tok", since)
	require.NoError(t, err)
	assert.Contains(t, doer.lastURL, "per_page=1")
	assert.Contains(t, doer.lastURL, "since=2026-03-01T12%3A00%3A00Z")
}

func TestListUpdatedIssues_FollowsLinkChain(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doer := &fakeDoer{responses: map[string]*httpclient.Response{}}
	github := NewGitHub(doer, newTestCache(), "https://api.test", nil)

	firstURL := github.issuesURL("octocat", "hello", since, listPageSize)
	secondURL := "https://api.test/repos/octocat/hello/issues?page=2"

	firstHeader := make(http.Header)
	firstHeader.Set("Link", fmt.Sprintf(`<%s>; rel="next", <%s>; rel="last"`, secondURL, secondURL))
	doer.responses[firstURL] = jsonResponse(`[{"number":1,"title":"first"},{"number":2,"title":"second"}]`, firstHeader)
	doer.responses[secondURL] = jsonResponse(`[{"number":3,"title":"third"}]`, nil)

	issues, err := github.ListUpdatedIssues(context.Background(), "octocat", "hello", "tok", since)
	require.NoError(t, err)

	want := []*entity.Issue{
		{Number: 1, Title: "first"},
		{Number: 2, Title: "second"},
		{Number: 3, Title: "third"},
	}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
}

func TestListUpdatedIssues_ReturnsPartialResultOnPageFailure(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doer := &fakeDoer{
		responses: map[string]*httpclient.Response{},
		errs:      map[string]error{},
	}
	resultCache := newTestCache()
	github := NewGitHub(doer, resultCache, "https://api.test", nil)

	firstURL := github.issuesURL("octocat", "hello", since, listPageSize)
	secondURL := "https://api.test/repos/octocat/hello/issues?page=2"

	firstHeader := make(http.Header)
	firstHeader.Set("Link", fmt.Sprintf(`<%s>; rel="next"`, secondURL))
	doer.responses[firstURL] = jsonResponse(`[{"number":1},{"number":2}]`, firstHeader)
	doer.errs[secondURL] = &httpclient.TransportError{StatusCode: http.StatusBadGateway}

	issues, err := github.ListUpdatedIssues(context.Background(), "octocat", "hello", "tok", since)
	require.NoError(t, err, "a failed page must not discard what was already fetched")
	require.Len(t, issues, 2)

	// Partial results are never cached; the next cycle retries the full list
	_, ok, cacheErr := resultCache.Get(context.Background(), cache.Key("github", "octocat", "hello", opIssues))
	require.NoError(t, cacheErr)
	assert.False(t, ok)
}

func TestIssueTimeline(t *testing.T) {
	doer := &fakeDoer{responses: map[string]*httpclient.Response{}}
	github := NewGitHub(doer, newTestCache(), "https://api.test", nil)

	timelineURL := fmt.Sprintf("https://api.test/repos/octocat/hello/issues/7/timeline?per_page=%d", listPageSize)
	doer.responses[timelineURL] = jsonResponse(
		`[{"event":"labeled","actor":{"login":"alice"},"created_at":"2026-03-01T12:00:00Z"},
		  {"event":"closed","actor":{"login":"bob"},"created_at":"2026-03-02T08:30:00Z"}]`, nil)

	events, err := github.IssueTimeline(context.Background(), "octocat", "hello", "7", "tok")
	require.NoError(t, err)

	want := []*entity.TimelineEvent{
		{Event: "labeled", Actor: "alice", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Event: "closed", Actor: "bob", CreatedAt: time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "next and last",
			header: `<https://api.test/issues?page=2>; rel="next", <https://api.test/issues?page=5>; rel="last"`,
			want:   "https://api.test/issues?page=2",
		},
		{
			name:   "last page",
			header: `<https://api.test/issues?page=4>; rel="prev", <https://api.test/issues?page=1>; rel="first"`,
			want:   "",
		},
		{name: "empty header", header: "", want: ""},
		{name: "malformed header", header: "garbage", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextPageURL(tt.header))
		})
	}
}

func TestRegistryGet(t *testing.T) {
	github := NewGitHub(&fakeDoer{}, nil, "https://api.test", nil)
	registry := Registry{entity.RepositoryTypeGitHub: github}

	prov, err := registry.Get(entity.RepositoryTypeGitHub)
	require.NoError(t, err)
	assert.Same(t, Provider(github), prov)

	_, err = registry.Get(entity.RepositoryType(99))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrInvalidInput))
}
