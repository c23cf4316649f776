package repository

import (
	"context"

	"issuepilot/internal/domain/entity"
)

// SubscriptionRegistry owns the set of (user, repository) subscriptions.
// The polling core only reads from it; subscribe/unsubscribe writes come
// from the public API layer.
type SubscriptionRegistry interface {
	// ListActiveSubscribersPage returns one page of active users together
	// with their subscribed repositories and decrypted provider tokens,
	// ordered by user id ascending. An empty slice means no more pages.
	ListActiveSubscribersPage(ctx context.Context, offset, limit int) ([]*entity.Subscriber, error)

	// GetRepository looks up a repository by (name, type). Returns
	// entity.ErrNotFound if no such repository is registered.
	GetRepository(ctx context.Context, name string, typ entity.RepositoryType) (*entity.Repository, error)

	// GetOrCreateRepository returns the repository identified by
	// (owner, name, type), creating it when first subscribed to.
	GetOrCreateRepository(ctx context.Context, repo *entity.Repository) (*entity.Repository, error)

	// AddSubscriber subscribes a user to a repository. Adding an existing
	// subscription is a no-op.
	AddSubscriber(ctx context.Context, repositoryID, userID int64) error

	// RemoveSubscriber unsubscribes a user from a repository. The bool
	// reports whether a subscription existed.
	RemoveSubscriber(ctx context.Context, repositoryID, userID int64) (bool, error)
}
