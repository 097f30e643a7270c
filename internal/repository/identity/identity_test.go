package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-cart/internal/migrate"
)

func exerciseStore(ctx context.Context, t *testing.T, s Store) {
	t.Helper()
	if id, ok, err := s.Get(ctx); err != nil || ok || id != "" {
		t.Fatalf("expected empty store, got %q %v %v", id, ok, err)
	}
	if err := s.Set(ctx, "gid://shopify/Cart/1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "gid://shopify/Cart/2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	id, ok, err := s.Get(ctx)
	if err != nil || !ok || id != "gid://shopify/Cart/2" {
		t.Fatalf("expected overwritten id, got %q %v %v", id, ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(context.Background(), t, NewMemory(""))

	seeded := NewMemory("gid://shopify/Cart/9")
	if id, ok, _ := seeded.Get(context.Background()); !ok || id != "gid://shopify/Cart/9" {
		t.Fatalf("unexpected seeded value %q", id)
	}
}

func TestMemoryScoperIsolatesScopes(t *testing.T) {
	ctx := context.Background()
	sc := NewMemoryScoper()
	if err := sc.Scope("a").Set(ctx, "cart-a"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := sc.Scope("b").Get(ctx); ok {
		t.Fatalf("scope b should be empty")
	}
	if id, _, _ := sc.Scope("a").Get(ctx); id != "cart-a" {
		t.Fatalf("scope a lost its value: %q", id)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cart.json")
	exerciseStore(context.Background(), t, NewFile(path))

	if id, ok, err := NewFile(path).Get(context.Background()); err != nil || !ok || id != "gid://shopify/Cart/2" {
		t.Fatalf("value not persisted: %q %v %v", id, ok, err)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cart.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := NewFile(path).Get(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPostgresStore(t *testing.T) {
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

	sc := NewPostgres(pool)
	if err := sc.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	exerciseStore(ctx, t, sc.Scope(uuid.NewString()))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	sc := NewRedis(client, "test:cart:identity:", time.Minute)
	if err := sc.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	key := uuid.NewString()
	exerciseStore(ctx, t, sc.Scope(key))
	if ttl := client.TTL(ctx, "test:cart:identity:"+key).Val(); ttl <= 0 {
		t.Fatalf("expected ttl on key, got %s", ttl)
	}
}

func TestMemoryScoperEvict(t *testing.T) {
	ctx := context.Background()
	scoper := NewMemoryScoper()
	if err := scoper.Scope("a").Set(ctx, "gid://shopify/Cart/1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := scoper.Scope("b").Set(ctx, "gid://shopify/Cart/2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	ev, ok := scoper.(Evicter)
	if !ok {
		t.Fatal("memory scoper should support eviction")
	}
	ev.Evict("a")

	if _, ok, _ := scoper.Scope("a").Get(ctx); ok {
		t.Error("evicted scope still remembers its cart")
	}
	if id, ok, _ := scoper.Scope("b").Get(ctx); !ok || id != "gid://shopify/Cart/2" {
		t.Errorf("other scope lost its cart: %q %v", id, ok)
	}
}
