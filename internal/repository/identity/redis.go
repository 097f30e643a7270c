package identity

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

type redisScoper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis keeps identifiers under prefix+scope keys. A zero ttl keeps keys
// forever; otherwise every Set refreshes the expiry.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) Scoper {
	return &redisScoper{client: client, prefix: prefix, ttl: ttl}
}

func (r *redisScoper) Scope(key string) Store {
	return &redisStore{client: r.client, key: r.prefix + key, ttl: r.ttl}
}

func (r *redisScoper) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type redisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (s *redisStore) Get(ctx context.Context) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, id != "", nil
}

func (s *redisStore) Set(ctx context.Context, id string) error {
	return s.client.Set(ctx, s.key, id, s.ttl).Err()
}
