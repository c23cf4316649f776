package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuepilot/internal/domain/entity"
)

func newMockRepo(t *testing.T) (*SubscriptionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SubscriptionRepo{db: db}, mock
}

func TestListActiveSubscribersPage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, email, provider_token\s+FROM users`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "provider_token"}).
			AddRow(1, "alice@example.com", "tok-a").
			AddRow(2, "bob@example.com", "tok-b"))

	mock.ExpectQuery(`SELECT s.user_id, r.id, r.name, r.owner, r.repository_type, r.active\s+FROM subscriptions s`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "id", "name", "owner", "repository_type", "active"}).
			AddRow(1, 10, "hello", "octocat", 1, true).
			AddRow(1, 11, "world", "octocat", 1, true).
			AddRow(2, 10, "hello", "octocat", 1, true))

	subscribers, err := repo.ListActiveSubscribersPage(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, subscribers, 2)

	assert.Equal(t, int64(1), subscribers[0].ID)
	assert.Equal(t, "alice@example.com", subscribers[0].Email)
	assert.Equal(t, "tok-a", subscribers[0].Token)
	require.Len(t, subscribers[0].Repositories, 2)
	assert.Equal(t, "hello", subscribers[0].Repositories[0].Name)
	assert.Equal(t, entity.RepositoryTypeGitHub, subscribers[0].Repositories[0].Type)

	require.Len(t, subscribers[1].Repositories, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSubscribersPage_EmptyPage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, email, provider_token\s+FROM users`).
		WithArgs(100, 300).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "provider_token"}))

	subscribers, err := repo.ListActiveSubscribersPage(context.Background(), 300, 100)
	require.NoError(t, err)
	assert.Empty(t, subscribers)

	// No subscription query when the user page is empty
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSubscribersPage_UserWithoutRepositories(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, email, provider_token\s+FROM users`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "provider_token"}).
			AddRow(1, "alice@example.com", "tok-a"))

	mock.ExpectQuery(`FROM subscriptions s`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "id", "name", "owner", "repository_type", "active"}))

	subscribers, err := repo.ListActiveSubscribersPage(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, subscribers, 1, "a user with no subscriptions still appears in the page")
	assert.Empty(t, subscribers[0].Repositories)
}

func TestListActiveSubscribersPage_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM users`).
		WithArgs(100, 0).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListActiveSubscribersPage(context.Background(), 0, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ListActiveSubscribersPage")
}

func TestGetRepository(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT id, name, owner, repository_type, active\s+FROM repositories`).
		WithArgs("hello", entity.RepositoryTypeGitHub).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner", "repository_type", "active"}).
			AddRow(10, "hello", "octocat", 1, true))

	got, err := repo.GetRepository(context.Background(), "hello", entity.RepositoryTypeGitHub)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ID)
	assert.Equal(t, "octocat", got.Owner)
	assert.True(t, got.Active)
}

func TestGetRepository_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM repositories`).
		WithArgs("missing", entity.RepositoryTypeGitHub).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetRepository(context.Background(), "missing", entity.RepositoryTypeGitHub)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestGetOrCreateRepository(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO repositories`).
		WithArgs("hello", "octocat", entity.RepositoryTypeGitHub).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner", "repository_type", "active"}).
			AddRow(10, "hello", "octocat", 1, true))

	got, err := repo.GetOrCreateRepository(context.Background(), &entity.Repository{
		Name:  "hello",
		Owner: "octocat",
		Type:  entity.RepositoryTypeGitHub,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ID)
	assert.True(t, got.Active, "conflicting insert reactivates the repository")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSubscriber(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(int64(10), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddSubscriber(context.Background(), 10, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveSubscriber(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{name: "existing subscription", rowsAffected: 1, want: true},
		{name: "never subscribed", rowsAffected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)

			mock.ExpectExec(`DELETE FROM subscriptions`).
				WithArgs(int64(10), int64(1)).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			removed, err := repo.RemoveSubscriber(context.Background(), 10, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, removed)
		})
	}
}
