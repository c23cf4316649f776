package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/httpclient"
	"issuepilot/internal/infra/provider"
	"issuepilot/internal/repository"
)

// stubRegistry is an in-memory SubscriptionRegistry for use case tests.
type stubRegistry struct {
	repos         map[string]*entity.Repository // name -> repository
	subscriptions map[[2]int64]bool             // (repoID, userID)
	nextID        int64

	getOrCreateErr error
	addErr         error
}

var _ repository.SubscriptionRegistry = (*stubRegistry)(nil)

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		repos:         make(map[string]*entity.Repository),
		subscriptions: make(map[[2]int64]bool),
		nextID:        1,
	}
}

func (s *stubRegistry) ListActiveSubscribersPage(context.Context, int, int) ([]*entity.Subscriber, error) {
	return nil, nil
}

func (s *stubRegistry) GetRepository(_ context.Context, name string, typ entity.RepositoryType) (*entity.Repository, error) {
	repo, ok := s.repos[name]
	if !ok || repo.Type != typ {
		return nil, entity.ErrNotFound
	}
	return repo, nil
}

func (s *stubRegistry) GetOrCreateRepository(_ context.Context, repo *entity.Repository) (*entity.Repository, error) {
	if s.getOrCreateErr != nil {
		return nil, s.getOrCreateErr
	}
	if existing, ok := s.repos[repo.Name]; ok {
		return existing, nil
	}
	created := *repo
	created.ID = s.nextID
	s.nextID++
	s.repos[repo.Name] = &created
	return &created, nil
}

func (s *stubRegistry) AddSubscriber(_ context.Context, repositoryID, userID int64) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.subscriptions[[2]int64{repositoryID, userID}] = true
	return nil
}

func (s *stubRegistry) RemoveSubscriber(_ context.Context, repositoryID, userID int64) (bool, error) {
	key := [2]int64{repositoryID, userID}
	if !s.subscriptions[key] {
		return false, nil
	}
	delete(s.subscriptions, key)
	return true, nil
}

// stubProvider scripts existence answers and timeline payloads.
type stubProvider struct {
	exists      bool
	existsErr   error
	timeline    []*entity.TimelineEvent
	timelineErr error
}

var _ provider.Provider = (*stubProvider)(nil)

func (s *stubProvider) RepositoryExists(context.Context, string, string, string) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubProvider) HasUpdatedIssues(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (s *stubProvider) ListUpdatedIssues(context.Context, string, string, string, time.Time) ([]*entity.Issue, error) {
	return nil, nil
}

func (s *stubProvider) IssueTimeline(context.Context, string, string, string, string) ([]*entity.TimelineEvent, error) {
	return s.timeline, s.timelineErr
}

func newTestService(reg *stubRegistry, prov *stubProvider) *Service {
	return NewService(reg, provider.Registry{entity.RepositoryTypeGitHub: prov})
}

func subscribeInput() SubscribeInput {
	return SubscribeInput{
		UserID:         1,
		Owner:          "octocat",
		RepositoryName: "hello",
		RepositoryType: entity.RepositoryTypeGitHub,
		Token:          "tok",
	}
}

func TestSubscribe(t *testing.T) {
	reg := newStubRegistry()
	svc := newTestService(reg, &stubProvider{exists: true})

	repo, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)
	assert.Equal(t, "hello", repo.Name)
	assert.Equal(t, "octocat", repo.Owner)
	assert.True(t, reg.subscriptions[[2]int64{repo.ID, 1}], "subscription should be recorded")
}

func TestSubscribe_RepositoryUnknownToProvider(t *testing.T) {
	reg := newStubRegistry()
	svc := newTestService(reg, &stubProvider{exists: false})

	_, err := svc.Subscribe(context.Background(), subscribeInput())
	assert.ErrorIs(t, err, entity.ErrRepositoryNotFound)
	assert.Empty(t, reg.repos, "nothing may be written when verification fails")
}

func TestSubscribe_Idempotent(t *testing.T) {
	reg := newStubRegistry()
	svc := newTestService(reg, &stubProvider{exists: true})

	first, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)
	second, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, reg.repos, 1)
	assert.Len(t, reg.subscriptions, 1)
}

func TestSubscribe_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input func(SubscribeInput) SubscribeInput
	}{
		{name: "missing name", input: func(in SubscribeInput) SubscribeInput { in.RepositoryName = ""; return in }},
		{name: "missing owner", input: func(in SubscribeInput) SubscribeInput { in.Owner = ""; return in }},
		{name: "missing type", input: func(in SubscribeInput) SubscribeInput { in.RepositoryType = 0; return in }},
		{name: "invalid user", input: func(in SubscribeInput) SubscribeInput { in.UserID = 0; return in }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newStubRegistry(), &stubProvider{exists: true})

			_, err := svc.Subscribe(context.Background(), tt.input(subscribeInput()))
			require.Error(t, err)

			var vErr *entity.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestSubscribe_RateLimitPassesThrough(t *testing.T) {
	svc := newTestService(newStubRegistry(), &stubProvider{
		existsErr: &httpclient.RateLimitError{Provider: "github"},
	})

	_, err := svc.Subscribe(context.Background(), subscribeInput())
	require.Error(t, err)
	assert.True(t, httpclient.IsRateLimit(err), "rate limit errors must stay recognizable for the API layer")
}

func TestUnsubscribe(t *testing.T) {
	reg := newStubRegistry()
	svc := newTestService(reg, &stubProvider{exists: true})

	repo, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)

	err = svc.Unsubscribe(context.Background(), UnsubscribeInput{
		UserID:         1,
		RepositoryName: "hello",
		RepositoryType: entity.RepositoryTypeGitHub,
	})
	require.NoError(t, err)
	assert.False(t, reg.subscriptions[[2]int64{repo.ID, 1}])
}

func TestUnsubscribe_UnknownRepository(t *testing.T) {
	svc := newTestService(newStubRegistry(), &stubProvider{})

	err := svc.Unsubscribe(context.Background(), UnsubscribeInput{
		UserID:         1,
		RepositoryName: "missing",
		RepositoryType: entity.RepositoryTypeGitHub,
	})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestUnsubscribe_NeverSubscribed(t *testing.T) {
	reg := newStubRegistry()
	svc := newTestService(reg, &stubProvider{exists: true})

	_, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)

	// A different user who never subscribed
	err = svc.Unsubscribe(context.Background(), UnsubscribeInput{
		UserID:         99,
		RepositoryName: "hello",
		RepositoryType: entity.RepositoryTypeGitHub,
	})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestGetIssueTimeline(t *testing.T) {
	reg := newStubRegistry()
	events := []*entity.TimelineEvent{
		{Event: "labeled", Actor: "alice", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	svc := newTestService(reg, &stubProvider{exists: true, timeline: events})

	_, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)

	got, err := svc.GetIssueTimeline(context.Background(), TimelineInput{
		RepositoryName: "hello",
		RepositoryType: entity.RepositoryTypeGitHub,
		IssueID:        "7",
		Token:          "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, events, got)
}

func TestGetIssueTimeline_UnknownRepository(t *testing.T) {
	svc := newTestService(newStubRegistry(), &stubProvider{})

	_, err := svc.GetIssueTimeline(context.Background(), TimelineInput{
		RepositoryName: "missing",
		RepositoryType: entity.RepositoryTypeGitHub,
		IssueID:        "7",
	})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestGetIssueTimeline_MissingIssueMapsToNotFound(t *testing.T) {
	reg := newStubRegistry()
	svc := newTestService(reg, &stubProvider{
		exists:      true,
		timelineErr: &httpclient.TransportError{StatusCode: 404},
	})

	_, err := svc.Subscribe(context.Background(), subscribeInput())
	require.NoError(t, err)

	_, err = svc.GetIssueTimeline(context.Background(), TimelineInput{
		RepositoryName: "hello",
		RepositoryType: entity.RepositoryTypeGitHub,
		IssueID:        "404",
	})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestSubscribe_UnknownProviderType(t *testing.T) {
	svc := newTestService(newStubRegistry(), &stubProvider{exists: true})

	in := subscribeInput()
	in.RepositoryType = entity.RepositoryType(42)
	_, err := svc.Subscribe(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestSubscribe_ProviderVerificationFailureIsWrapped(t *testing.T) {
	svc := newTestService(newStubRegistry(), &stubProvider{
		existsErr: errors.New("network partition"),
	})

	_, err := svc.Subscribe(context.Background(), subscribeInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify repository")
}
