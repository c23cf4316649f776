package entity

// Subscriber is an active user together with the repositories they watch.
// The provider token is fetched lazily per user by the registry and never
// persisted by the polling core.
type Subscriber struct {
	ID           int64
	Email        string
	Token        string
	Repositories []*Repository
}
