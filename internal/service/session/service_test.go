package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-cart/internal/config"
	"storefront-cart/internal/repository/identity"
	sessionrepo "storefront-cart/internal/repository/session"
	"storefront-cart/internal/service/cart"
	"storefront-cart/internal/storefront"
	"storefront-cart/internal/storefront/storefronttest"
)

func newFactory(t *testing.T, srv *storefronttest.Server) Factory {
	t.Helper()
	client, err := storefront.NewClient(config.StorefrontConfig{
		AccessToken: storefronttest.Token,
		Timeout:     2 * time.Second,
		LinesFirst:  10,
	}, zap.NewNop(), storefront.WithEndpoint(srv.URL))
	require.NoError(t, err)
	return func(store identity.Store) *cart.Synchronizer {
		return cart.New(client, store)
	}
}

func waitStarted(t *testing.T, syn *cart.Synchronizer) {
	t.Helper()
	require.Eventually(t, syn.Started, 2*time.Second, 5*time.Millisecond)
}

func TestIssueAndLookup(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	svc := New(sessionrepo.NewMemory(), identity.NewMemoryScoper(), newFactory(t, srv), WithTTL(time.Hour))
	ctx := context.Background()

	sess, syn, err := svc.Issue(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.ScopeKey)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)
	assert.Equal(t, 3600, svc.TTLSeconds())

	got, err := svc.Lookup(ctx, sess.Token)
	require.NoError(t, err)
	assert.Same(t, syn, got)

	waitStarted(t, syn)
	snap, ok := syn.Snapshot()
	require.True(t, ok)
	assert.NotEmpty(t, snap.ID)
}

func TestSessionsDoNotShareCarts(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	svc := New(sessionrepo.NewMemory(), identity.NewMemoryScoper(), newFactory(t, srv))
	ctx := context.Background()

	_, a, err := svc.Issue(ctx)
	require.NoError(t, err)
	_, b, err := svc.Issue(ctx)
	require.NoError(t, err)
	waitStarted(t, a)
	waitStarted(t, b)

	ca, _ := a.Snapshot()
	cb, _ := b.Snapshot()
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestLookupRejectsUnknownAndExpired(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	svc := New(sessionrepo.NewMemory(), identity.NewMemoryScoper(), newFactory(t, srv), WithTTL(time.Minute))
	ctx := context.Background()

	_, err := svc.Lookup(ctx, "")
	assert.True(t, errors.Is(err, ErrInvalidToken))
	_, err = svc.Lookup(ctx, "nope")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	sess, syn, err := svc.Issue(ctx)
	require.NoError(t, err)
	waitStarted(t, syn)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Lookup(ctx, sess.Token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLookupRebuildsAfterRestart(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	repo := sessionrepo.NewMemory()
	scoper := identity.NewMemoryScoper()
	factory := newFactory(t, srv)
	ctx := context.Background()

	first := New(repo, scoper, factory)
	sess, syn, err := first.Issue(ctx)
	require.NoError(t, err)
	waitStarted(t, syn)
	before, _ := syn.Snapshot()

	second := New(repo, scoper, factory)
	rebuilt, err := second.Lookup(ctx, sess.Token)
	require.NoError(t, err)
	assert.NotSame(t, syn, rebuilt)
	waitStarted(t, rebuilt)

	after, _ := rebuilt.Snapshot()
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, 1, srv.Calls("CartCreate"))
}

func TestRevoke(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	svc := New(sessionrepo.NewMemory(), identity.NewMemoryScoper(), newFactory(t, srv))
	ctx := context.Background()

	sess, syn, err := svc.Issue(ctx)
	require.NoError(t, err)
	waitStarted(t, syn)

	require.NoError(t, svc.Revoke(ctx, sess.Token))
	_, err = svc.Lookup(ctx, sess.Token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
	assert.True(t, errors.Is(svc.Revoke(ctx, sess.Token), ErrInvalidToken))
}

func TestReady(t *testing.T) {
	svc := New(sessionrepo.NewMemory(), identity.NewMemoryScoper(), nil)
	assert.NoError(t, svc.Ready(context.Background()))
}

func TestSweepAndRevokeReleaseScopes(t *testing.T) {
	srv := storefronttest.NewServer()
	defer srv.Close()
	scoper := identity.NewMemoryScoper()
	svc := New(sessionrepo.NewMemory(), scoper, newFactory(t, srv), WithTTL(time.Minute))
	ctx := context.Background()

	expired, a, err := svc.Issue(ctx)
	require.NoError(t, err)
	waitStarted(t, a)
	_, ok, err := scoper.Scope(expired.ScopeKey).Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Sweep(ctx)
	require.NoError(t, err)
	_, ok, _ = scoper.Scope(expired.ScopeKey).Get(ctx)
	assert.False(t, ok, "swept session keeps its identity scope")

	svc.now = time.Now
	revoked, b, err := svc.Issue(ctx)
	require.NoError(t, err)
	waitStarted(t, b)
	require.NoError(t, svc.Revoke(ctx, revoked.Token))
	_, ok, _ = scoper.Scope(revoked.ScopeKey).Get(ctx)
	assert.False(t, ok, "revoked session keeps its identity scope")
}
