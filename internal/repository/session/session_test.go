package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/migrate"
)

func exerciseRepository(ctx context.Context, t *testing.T, repo Repository) {
	t.Helper()
	token := uuid.NewString()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)

	if _, err := repo.Get(ctx, token); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found before create, got %v", err)
	}
	if err := repo.Create(ctx, Session{Token: token, ScopeKey: "scope-1", ExpiresAt: expires}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, Session{Token: token, ScopeKey: "scope-2", ExpiresAt: expires}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	got, err := repo.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ScopeKey != "scope-1" || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %+v", got)
	}
	if err := repo.Delete(ctx, token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, token); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(context.Background(), t, NewMemory())
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	now := time.Now()
	_ = repo.Create(ctx, Session{Token: "old", ScopeKey: "a", ExpiresAt: now.Add(-time.Minute)})
	_ = repo.Create(ctx, Session{Token: "new", ScopeKey: "b", ExpiresAt: now.Add(time.Minute)})

	n, err := repo.Purge(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("Purge: %d %v", n, err)
	}
	if _, err := repo.Get(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired session survived purge")
	}
	if _, err := repo.Get(ctx, "new"); err != nil {
		t.Fatalf("live session purged: %v", err)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	if !(Session{ExpiresAt: now}).Expired(now) {
		t.Fatalf("session expiring now should be expired")
	}
	if (Session{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatalf("future session reported expired")
	}
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer pool.Close()
	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	exerciseRepository(ctx, t, NewPostgres(pool))
}

func TestRedisRepository(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	exerciseRepository(context.Background(), t, NewRedis(client, "test:cart:"))
}
