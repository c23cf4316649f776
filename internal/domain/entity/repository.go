package entity

import (
	"fmt"
	"strings"
)

// RepositoryType identifies the external issue-tracking provider a
// repository lives on. New providers get a new constant here and a
// matching client registered in the provider registry.
type RepositoryType int

const (
	// RepositoryTypeGitHub is the GitHub REST API provider.
	RepositoryTypeGitHub RepositoryType = 1
)

// String returns the lowercase provider name used in cache keys,
// metrics labels and log fields.
func (t RepositoryType) String() string {
	switch t {
	case RepositoryTypeGitHub:
		return "github"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseRepositoryType maps a provider name to its RepositoryType.
// Matching is case-insensitive.
func ParseRepositoryType(s string) (RepositoryType, error) {
	switch strings.ToLower(s) {
	case "github":
		return RepositoryTypeGitHub, nil
	default:
		return 0, fmt.Errorf("%w: unknown repository type %q", ErrInvalidInput, s)
	}
}

// Repository represents a polled repository on an external provider.
// Identity is the (Owner, Name, Type) triple; two repositories with the
// same name under different owners are distinct.
type Repository struct {
	ID     int64
	Name   string
	Owner  string
	Type   RepositoryType
	Active bool
}

// FullName returns the "owner/name" form used in logs and API paths.
func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Validate checks that the repository carries the fields required to
// build provider API URLs.
func (r *Repository) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if r.Owner == "" {
		return &ValidationError{Field: "owner", Message: "owner is required"}
	}
	if r.Type == 0 {
		return &ValidationError{Field: "repository_type", Message: "repository type is required"}
	}
	return nil
}
