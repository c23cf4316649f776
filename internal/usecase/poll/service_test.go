package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/provider"
	"issuepilot/internal/repository"
	"issuepilot/internal/resilience/retry"
	"issuepilot/internal/usecase/notify"
)

// fakeRegistry serves canned subscriber pages and records the offsets
// requested.
type fakeRegistry struct {
	pages   map[int][]*entity.Subscriber
	pageErr error
	offsets []int
}

var _ repository.SubscriptionRegistry = (*fakeRegistry)(nil)

func (f *fakeRegistry) ListActiveSubscribersPage(_ context.Context, offset, _ int) ([]*entity.Subscriber, error) {
	f.offsets = append(f.offsets, offset)
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	return f.pages[offset], nil
}

func (f *fakeRegistry) GetRepository(context.Context, string, entity.RepositoryType) (*entity.Repository, error) {
	return nil, entity.ErrNotFound
}

func (f *fakeRegistry) GetOrCreateRepository(_ context.Context, repo *entity.Repository) (*entity.Repository, error) {
	return repo, nil
}

func (f *fakeRegistry) AddSubscriber(context.Context, int64, int64) error { return nil }

func (f *fakeRegistry) RemoveSubscriber(context.Context, int64, int64) (bool, error) {
	return false, nil
}

// fakeProvider scripts HasUpdatedIssues per repository full name.
type fakeProvider struct {
	mu      sync.Mutex
	updated map[string]bool  // full name -> answer
	fail    map[string]error // full name -> error returned every call
	panics  map[string]bool  // full name -> panic on call
	flaky   map[string]int   // full name -> failures before success
	calls   map[string]int
}

var _ provider.Provider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		updated: make(map[string]bool),
		fail:    make(map[string]error),
		panics:  make(map[string]bool),
		flaky:   make(map[string]int),
		calls:   make(map[string]int),
	}
}

func (f *fakeProvider) RepositoryExists(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func (f *fakeProvider) HasUpdatedIssues(_ context.Context, owner, name, _ string, _ time.Time) (bool, error) {
	full := owner + "/" + name

	f.mu.Lock()
	f.calls[full]++
	calls := f.calls[full]
	f.mu.Unlock()

	if f.panics[full] {
		panic("provider blew up")
	}
	if err, ok := f.fail[full]; ok {
		return false, err
	}
	if remaining, ok := f.flaky[full]; ok && calls <= remaining {
		return false, errors.New("transient provider error")
	}
	return f.updated[full], nil
}

func (f *fakeProvider) ListUpdatedIssues(context.Context, string, string, string, time.Time) ([]*entity.Issue, error) {
	return nil, nil
}

func (f *fakeProvider) IssueTimeline(context.Context, string, string, string, string) ([]*entity.TimelineEvent, error) {
	return nil, nil
}

func (f *fakeProvider) callCount(full string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[full]
}

// fakeDispatcher records enqueued jobs.
type fakeDispatcher struct {
	mu         sync.Mutex
	jobs       []entity.NotificationJob
	enqueueErr error
}

var _ notify.Dispatcher = (*fakeDispatcher)(nil)

func (f *fakeDispatcher) Enqueue(_ context.Context, job entity.NotificationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeDispatcher) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (f *fakeDispatcher) ChannelHealth() []notify.ChannelHealthStatus { return nil }

func (f *fakeDispatcher) Shutdown(context.Context) error { return nil }

func (f *fakeDispatcher) enqueued() []entity.NotificationJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.NotificationJob, len(f.jobs))
	copy(out, f.jobs)
	return out
}

func repoFixture(name string) *entity.Repository {
	return &entity.Repository{
		Name:   name,
		Owner:  "octocat",
		Type:   entity.RepositoryTypeGitHub,
		Active: true,
	}
}

// testConfig keeps retries fast and deterministic.
func testConfig(pageSize int) Config {
	return Config{
		PageSize:    pageSize,
		Lookback:    time.Hour,
		Parallelism: 4,
		JobRetry: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   time.Millisecond,
			MaxDelay:       time.Millisecond,
			Multiplier:     1.0,
			JitterFraction: 0,
		},
	}
}

func newTestService(reg *fakeRegistry, prov *fakeProvider, disp *fakeDispatcher, pageSize int) *Service {
	providers := provider.Registry{entity.RepositoryTypeGitHub: prov}
	return NewService(reg, providers, disp, testConfig(pageSize))
}

func TestCheckAllSubscriptions_EnqueuesOnePerUpdatedRepository(t *testing.T) {
	prov := newFakeProvider()
	prov.updated["octocat/active"] = true
	prov.updated["octocat/quiet"] = false

	reg := &fakeRegistry{pages: map[int][]*entity.Subscriber{
		0: {
			{ID: 1, Email: "alice@example.com", Token: "tok-a", Repositories: []*entity.Repository{repoFixture("active")}},
			{ID: 2, Email: "bob@example.com", Token: "tok-b", Repositories: []*entity.Repository{repoFixture("quiet")}},
		},
	}}
	disp := &fakeDispatcher{}

	stats, err := newTestService(reg, prov, disp, 100).CheckAllSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Subscribers)
	assert.Equal(t, int64(2), stats.Checked)
	assert.Equal(t, int64(1), stats.Updated)
	assert.Equal(t, int64(0), stats.Failed)

	jobs := disp.enqueued()
	require.Len(t, jobs, 1, "exactly one notification per updated repository")
	assert.Equal(t, entity.NotificationJob{
		RepositoryName: "active",
		Owner:          "octocat",
		RecipientEmail: "alice@example.com",
	}, jobs[0])
}

func TestCheckAllSubscriptions_FailingJobDoesNotAbortCycle(t *testing.T) {
	prov := newFakeProvider()
	prov.fail["octocat/broken"] = errors.New("provider down")
	prov.updated["octocat/healthy"] = true

	reg := &fakeRegistry{pages: map[int][]*entity.Subscriber{
		0: {
			{ID: 1, Email: "alice@example.com", Repositories: []*entity.Repository{
				repoFixture("broken"),
				repoFixture("healthy"),
			}},
		},
	}}
	disp := &fakeDispatcher{}

	stats, err := newTestService(reg, prov, disp, 100).CheckAllSubscriptions(context.Background())
	require.NoError(t, err, "job failures must stay inside the job")

	assert.Equal(t, int64(2), stats.Checked)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Updated)
	require.Len(t, disp.enqueued(), 1)
	assert.Equal(t, "healthy", disp.enqueued()[0].RepositoryName)
}

func TestCheckAllSubscriptions_PanickingJobIsRecovered(t *testing.T) {
	prov := newFakeProvider()
	prov.panics["octocat/cursed"] = true
	prov.updated["octocat/healthy"] = true

	reg := &fakeRegistry{pages: map[int][]*entity.Subscriber{
		0: {
			{ID: 1, Email: "alice@example.com", Repositories: []*entity.Repository{
				repoFixture("cursed"),
				repoFixture("healthy"),
			}},
		},
	}}
	disp := &fakeDispatcher{}

	stats, err := newTestService(reg, prov, disp, 100).CheckAllSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Updated)
}

func TestCheckAllSubscriptions_RetriesTransientFailures(t *testing.T) {
	prov := newFakeProvider()
	prov.flaky["octocat/flaky"] = 2 // fail twice, succeed on third attempt
	prov.updated["octocat/flaky"] = true

	reg := &fakeRegistry{pages: map[int][]*entity.Subscriber{
		0: {{ID: 1, Email: "alice@example.com", Repositories: []*entity.Repository{repoFixture("flaky")}}},
	}}
	disp := &fakeDispatcher{}

	stats, err := newTestService(reg, prov, disp, 100).CheckAllSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, prov.callCount("octocat/flaky"))
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(1), stats.Updated)
	require.Len(t, disp.enqueued(), 1, "a retried job still produces exactly one notification")
}

func TestCheckAllSubscriptions_PagesThroughUsers(t *testing.T) {
	prov := newFakeProvider()

	reg := &fakeRegistry{pages: map[int][]*entity.Subscriber{
		0: {
			{ID: 1, Email: "a@example.com", Repositories: []*entity.Repository{repoFixture("one")}},
			{ID: 2, Email: "b@example.com", Repositories: []*entity.Repository{repoFixture("two")}},
		},
		2: {
			{ID: 3, Email: "c@example.com", Repositories: []*entity.Repository{repoFixture("three")}},
		},
	}}
	disp := &fakeDispatcher{}

	stats, err := newTestService(reg, prov, disp, 2).CheckAllSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, reg.offsets)
	assert.Equal(t, int64(3), stats.Subscribers)
	assert.Equal(t, int64(3), stats.Checked)
}

func TestCheckAllSubscriptions_EnumerationFailureAbortsCycle(t *testing.T) {
	reg := &fakeRegistry{pageErr: errors.New("database unavailable")}
	disp := &fakeDispatcher{}

	stats, err := newTestService(reg, newFakeProvider(), disp, 100).CheckAllSubscriptions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active subscribers")
	assert.Equal(t, int64(0), stats.Subscribers)
	assert.Empty(t, disp.enqueued())
}

func TestJobRetryable(t *testing.T) {
	assert.False(t, jobRetryable(context.Canceled))
	assert.False(t, jobRetryable(context.DeadlineExceeded))
	assert.False(t, jobRetryable(entity.ErrInvalidInput))
	assert.True(t, jobRetryable(errors.New("provider hiccup")))
}
