package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresScoper struct {
	pool *pgxpool.Pool
}

// NewPostgres keeps identifiers in the cart_identities table, one row per scope.
func NewPostgres(pool *pgxpool.Pool) Scoper {
	return &postgresScoper{pool: pool}
}

func (r *postgresScoper) Scope(key string) Store {
	return &postgresStore{pool: r.pool, key: key}
}

func (r *postgresScoper) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type postgresStore struct {
	pool *pgxpool.Pool
	key  string
}

func (s *postgresStore) Get(ctx context.Context) (string, bool, error) {
	const q = `
SELECT cart_id
FROM cart_identities
WHERE scope_key = $1
`
	var id string
	if err := s.pool.QueryRow(ctx, q, s.key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, id != "", nil
}

func (s *postgresStore) Set(ctx context.Context, id string) error {
	const q = `
INSERT INTO cart_identities (scope_key, cart_id)
VALUES ($1, $2)
ON CONFLICT (scope_key) DO UPDATE
SET cart_id = EXCLUDED.cart_id,
    updated_at = now()
`
	_, err := s.pool.Exec(ctx, q, s.key, id)
	return err
}
