package session

import (
	"context"
	"time"
)

// Session binds an opaque bearer token to the identity scope that owns one
// cart. The scope key is what identity stores are keyed by.
type Session struct {
	Token     string
	ScopeKey  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Repository interface {
	// Create fails with domain.ErrAlreadyExists when the token is taken.
	Create(ctx context.Context, s Session) error
	// Get returns domain.ErrNotFound for unknown tokens.
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	// Purge drops sessions that expired before now and reports how many.
	Purge(ctx context.Context, now time.Time) (int64, error)
}
