// Package subscription implements the public subscription use cases:
// subscribing a user to a repository, unsubscribing, and reading an
// issue timeline. Repository existence is always verified against the
// provider before a subscription is created.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/infra/httpclient"
	"issuepilot/internal/infra/provider"
	"issuepilot/internal/repository"
)

// SubscribeInput represents the input parameters for subscribing a user
// to a repository.
type SubscribeInput struct {
	UserID         int64
	Owner          string
	RepositoryName string
	RepositoryType entity.RepositoryType
	Token          string
}

// UnsubscribeInput represents the input parameters for removing a
// subscription.
type UnsubscribeInput struct {
	UserID         int64
	RepositoryName string
	RepositoryType entity.RepositoryType
}

// TimelineInput represents the input parameters for reading an issue
// timeline.
type TimelineInput struct {
	RepositoryName string
	RepositoryType entity.RepositoryType
	IssueID        string
	Token          string
}

// Service provides subscription management use cases.
// It handles business logic for subscriptions and delegates persistence to
// the registry and remote lookups to the provider clients.
type Service struct {
	Registry  repository.SubscriptionRegistry
	Providers provider.Registry
}

// NewService creates a new subscription Service.
func NewService(registry repository.SubscriptionRegistry, providers provider.Registry) *Service {
	return &Service{Registry: registry, Providers: providers}
}

// Subscribe subscribes a user to a repository, registering the repository
// on first use.
//
// The repository is verified against its provider before anything is
// written: a repository the provider does not know about returns
// entity.ErrRepositoryNotFound and leaves the registry untouched.
// Subscribing twice to the same repository is a no-op.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*entity.Repository, error) {
	repo := &entity.Repository{
		Name:   in.RepositoryName,
		Owner:  in.Owner,
		Type:   in.RepositoryType,
		Active: true,
	}
	if err := repo.Validate(); err != nil {
		return nil, err
	}
	if in.UserID <= 0 {
		return nil, &entity.ValidationError{Field: "user_id", Message: "must be positive"}
	}

	prov, err := s.Providers.Get(in.RepositoryType)
	if err != nil {
		return nil, err
	}

	exists, err := prov.RepositoryExists(ctx, in.Owner, in.RepositoryName, in.Token)
	if err != nil {
		if httpclient.IsRateLimit(err) {
			return nil, err
		}
		return nil, fmt.Errorf("verify repository: %w", err)
	}
	if !exists {
		return nil, entity.ErrRepositoryNotFound
	}

	repo, err = s.Registry.GetOrCreateRepository(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("register repository: %w", err)
	}

	if err := s.Registry.AddSubscriber(ctx, repo.ID, in.UserID); err != nil {
		return nil, fmt.Errorf("add subscriber: %w", err)
	}
	return repo, nil
}

// Unsubscribe removes a user's subscription to a repository.
//
// Returns entity.ErrNotFound when the repository is unknown or the user
// was never subscribed to it, so the API layer can answer 404 without
// guessing which lookup failed.
func (s *Service) Unsubscribe(ctx context.Context, in UnsubscribeInput) error {
	if in.UserID <= 0 {
		return &entity.ValidationError{Field: "user_id", Message: "must be positive"}
	}
	if in.RepositoryName == "" {
		return &entity.ValidationError{Field: "name", Message: "is required"}
	}

	repo, err := s.Registry.GetRepository(ctx, in.RepositoryName, in.RepositoryType)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return entity.ErrNotFound
		}
		return fmt.Errorf("get repository: %w", err)
	}

	removed, err := s.Registry.RemoveSubscriber(ctx, repo.ID, in.UserID)
	if err != nil {
		return fmt.Errorf("remove subscriber: %w", err)
	}
	if !removed {
		return entity.ErrNotFound
	}
	return nil
}

// GetIssueTimeline returns the event timeline of one issue in a
// registered repository.
//
// Returns entity.ErrNotFound when the repository is not registered.
// Provider pagination failures degrade to a partial timeline rather than
// an error, matching the provider contract.
func (s *Service) GetIssueTimeline(ctx context.Context, in TimelineInput) ([]*entity.TimelineEvent, error) {
	if in.RepositoryName == "" {
		return nil, &entity.ValidationError{Field: "name", Message: "is required"}
	}
	if in.IssueID == "" {
		return nil, &entity.ValidationError{Field: "issue_id", Message: "is required"}
	}

	repo, err := s.Registry.GetRepository(ctx, in.RepositoryName, in.RepositoryType)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("get repository: %w", err)
	}

	prov, err := s.Providers.Get(repo.Type)
	if err != nil {
		return nil, err
	}

	events, err := prov.IssueTimeline(ctx, repo.Owner, repo.Name, in.IssueID, in.Token)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("fetch issue timeline: %w", err)
	}
	return events, nil
}
