package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/repository"
)

type SubscriptionRepo struct{ db *sql.DB }

func NewSubscriptionRepo(db *sql.DB) repository.SubscriptionRegistry {
	return &SubscriptionRepo{db: db}
}

func (repo *SubscriptionRepo) ListActiveSubscribersPage(ctx context.Context, offset, limit int) ([]*entity.Subscriber, error) {
	const userQuery = `
SELECT id, email, provider_token
FROM users
WHERE active = TRUE
ORDER BY id ASC
LIMIT $1 OFFSET $2`
	rows, err := repo.db.QueryContext(ctx, userQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListActiveSubscribersPage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subscribers := make([]*entity.Subscriber, 0, limit)
	byID := make(map[int64]*entity.Subscriber, limit)
	for rows.Next() {
		var sub entity.Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Token); err != nil {
			return nil, fmt.Errorf("ListActiveSubscribersPage: %w", err)
		}
		subscribers = append(subscribers, &sub)
		byID[sub.ID] = &sub
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListActiveSubscribersPage: %w", err)
	}
	if len(subscribers) == 0 {
		return subscribers, nil
	}

	// Fetch the page's subscriptions in one joined query instead of one
	// query per user. The subselect repeats the page window so both
	// queries see the same user set.
	const repoQuery = `
SELECT s.user_id, r.id, r.name, r.owner, r.repository_type, r.active
FROM subscriptions s
JOIN repositories r ON r.id = s.repository_id
WHERE r.active = TRUE
AND s.user_id IN (
        SELECT id FROM users
        WHERE active = TRUE
        ORDER BY id ASC
        LIMIT $1 OFFSET $2)
ORDER BY s.user_id ASC, r.id ASC`
	repoRows, err := repo.db.QueryContext(ctx, repoQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListActiveSubscribersPage: %w", err)
	}
	defer func() { _ = repoRows.Close() }()

	for repoRows.Next() {
		var userID int64
		var r entity.Repository
		if err := repoRows.Scan(&userID, &r.ID, &r.Name, &r.Owner, &r.Type, &r.Active); err != nil {
			return nil, fmt.Errorf("ListActiveSubscribersPage: %w", err)
		}
		if sub, ok := byID[userID]; ok {
			sub.Repositories = append(sub.Repositories, &r)
		}
	}
	return subscribers, repoRows.Err()
}

func (repo *SubscriptionRepo) GetRepository(ctx context.Context, name string, typ entity.RepositoryType) (*entity.Repository, error) {
	const query = `
SELECT id, name, owner, repository_type, active
FROM repositories
WHERE name = $1
AND repository_type = $2
LIMIT 1`
	var r entity.Repository
	err := repo.db.QueryRowContext(ctx, query, name, typ).Scan(
		&r.ID, &r.Name, &r.Owner, &r.Type, &r.Active,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetRepository: %w", err)
	}
	return &r, nil
}

func (repo *SubscriptionRepo) GetOrCreateRepository(ctx context.Context, in *entity.Repository) (*entity.Repository, error) {
	// Identity is (owner, name, repository_type); a resubscribed
	// repository is reactivated in place.
	const query = `
INSERT INTO repositories (name, owner, repository_type, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (owner, name, repository_type)
DO UPDATE SET active = TRUE
RETURNING id, name, owner, repository_type, active`
	var r entity.Repository
	err := repo.db.QueryRowContext(ctx, query, in.Name, in.Owner, in.Type).Scan(
		&r.ID, &r.Name, &r.Owner, &r.Type, &r.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateRepository: %w", err)
	}
	return &r, nil
}

func (repo *SubscriptionRepo) AddSubscriber(ctx context.Context, repositoryID, userID int64) error {
	const query = `
INSERT INTO subscriptions (repository_id, user_id)
VALUES ($1, $2)
ON CONFLICT (repository_id, user_id) DO NOTHING`
	_, err := repo.db.ExecContext(ctx, query, repositoryID, userID)
	if err != nil {
		return fmt.Errorf("AddSubscriber: %w", err)
	}
	return nil
}

func (repo *SubscriptionRepo) RemoveSubscriber(ctx context.Context, repositoryID, userID int64) (bool, error) {
	const query = `
DELETE FROM subscriptions
WHERE repository_id = $1
AND user_id = $2`
	res, err := repo.db.ExecContext(ctx, query, repositoryID, userID)
	if err != nil {
		return false, fmt.Errorf("RemoveSubscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("RemoveSubscriber: %w", err)
	}
	return n > 0, nil
}
