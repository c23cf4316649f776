// Package provider implements clients for external issue-tracking
// services. Each provider answers existence and issue-activity questions
// for repositories it hosts, fronted by the result cache and the
// rate-limit-aware HTTP client.
package provider

import (
	"context"
	"fmt"
	"time"

	"issuepilot/internal/domain/entity"
)

// Provider answers repository questions for one external service.
// Implementations must be safe for concurrent use; check jobs for many
// (user, repository) pairs call into one shared instance.
type Provider interface {
	// RepositoryExists reports whether the repository is visible to the
	// given token. A provider 404 reads as false, not an error.
	RepositoryExists(ctx context.Context, owner, name, token string) (bool, error)

	// HasUpdatedIssues reports whether the repository has at least one
	// issue created or updated since the given time.
	HasUpdatedIssues(ctx context.Context, owner, name, token string, since time.Time) (bool, error)

	// ListUpdatedIssues returns issues updated since the given time.
	// Pagination failures degrade to a partial result, not an error.
	ListUpdatedIssues(ctx context.Context, owner, name, token string, since time.Time) ([]*entity.Issue, error)

	// IssueTimeline returns the event timeline of one issue, with the
	// same partial-result policy as ListUpdatedIssues.
	IssueTimeline(ctx context.Context, owner, name, issueID, token string) ([]*entity.TimelineEvent, error)
}

// Registry maps a repository type to the provider client serving it.
// Providers are registered once at startup; lookups are read-only after
// that, so no locking is needed.
type Registry map[entity.RepositoryType]Provider

// Get returns the provider for the given repository type.
func (r Registry) Get(typ entity.RepositoryType) (Provider, error) {
	p, ok := r[typ]
	if !ok {
		return nil, fmt.Errorf("%w: no provider registered for %s", entity.ErrInvalidInput, typ)
	}
	return p, nil
}
