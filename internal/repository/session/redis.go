package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"storefront-cart/internal/domain"
)

type redisRepo struct {
	client *redis.Client
	prefix string
}

// NewRedis stores each session as a JSON value that expires with the session,
// so Purge has nothing to do.
func NewRedis(client *redis.Client, prefix string) Repository {
	return &redisRepo{client: client, prefix: prefix}
}

type redisValue struct {
	ScopeKey  string    `json:"scopeKey"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *redisRepo) key(token string) string {
	return r.prefix + "session:" + token
}

func (r *redisRepo) Create(ctx context.Context, s Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired at %s", s.ExpiresAt)
	}
	raw, err := json.Marshal(redisValue{ScopeKey: s.ScopeKey, ExpiresAt: s.ExpiresAt, CreatedAt: s.CreatedAt})
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(s.Token), raw, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *redisRepo) Get(ctx context.Context, token string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var v redisValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &Session{Token: token, ScopeKey: v.ScopeKey, ExpiresAt: v.ExpiresAt, CreatedAt: v.CreatedAt}, nil
}

func (r *redisRepo) Delete(ctx context.Context, token string) error {
	n, err := r.client.Del(ctx, r.key(token)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *redisRepo) Purge(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
