// Package session hands each browser session its own cart Synchronizer.
// Sessions are bearer tokens bound to an identity scope, so two sessions
// never share a cart identifier.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/repository/identity"
	sessionrepo "storefront-cart/internal/repository/session"
	"storefront-cart/internal/service/cart"
)

var ErrInvalidToken = errors.New("invalid session token")

// Factory builds a Synchronizer over a scoped identity store.
type Factory func(store identity.Store) *cart.Synchronizer

type Service struct {
	repo         sessionrepo.Repository
	scoper       identity.Scoper
	newSync      Factory
	logger       *zap.Logger
	ttl          time.Duration
	startTimeout time.Duration
	now          func() time.Time

	mu   sync.Mutex
	live map[string]*entry
}

type entry struct {
	sync      *cart.Synchronizer
	scopeKey  string
	expiresAt time.Time
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithStartTimeout bounds the background resume kicked off for new sessions.
func WithStartTimeout(d time.Duration) Option {
	return func(s *Service) { s.startTimeout = d }
}

func New(repo sessionrepo.Repository, scoper identity.Scoper, newSync Factory, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		scoper:       scoper,
		newSync:      newSync,
		logger:       zap.NewNop(),
		ttl:          30 * 24 * time.Hour,
		startTimeout: 30 * time.Second,
		now:          time.Now,
		live:         make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue opens a session with a fresh identity scope and starts resolving
// its cart in the background.
func (s *Service) Issue(ctx context.Context) (sessionrepo.Session, *cart.Synchronizer, error) {
	token, err := randomToken()
	if err != nil {
		return sessionrepo.Session{}, nil, err
	}
	sess := sessionrepo.Session{
		Token:     token,
		ScopeKey:  uuid.NewString(),
		ExpiresAt: s.now().Add(s.ttl).UTC(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return sessionrepo.Session{}, nil, fmt.Errorf("create session: %w", err)
	}
	syn := s.attach(sess)
	s.logger.Info("session issued", zap.String("scope", sess.ScopeKey), zap.Time("expiresAt", sess.ExpiresAt))
	return sess, syn, nil
}

// Lookup returns the Synchronizer behind token. Sessions issued by an
// earlier process are rebuilt from the repository; the scoped identity store
// still remembers their cart.
func (s *Service) Lookup(ctx context.Context, token string) (*cart.Synchronizer, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	now := s.now()

	s.mu.Lock()
	if e, ok := s.live[token]; ok {
		if now.Before(e.expiresAt) {
			s.mu.Unlock()
			return e.sync, nil
		}
		delete(s.live, token)
		s.evict(e.scopeKey)
	}
	s.mu.Unlock()

	sess, err := s.repo.Get(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(now) {
		return nil, ErrInvalidToken
	}
	return s.attach(*sess), nil
}

// Revoke ends a session. Its cart is left alone on the gateway.
func (s *Service) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	if e, ok := s.live[token]; ok {
		delete(s.live, token)
		s.evict(e.scopeKey)
	}
	s.mu.Unlock()
	if err := s.repo.Delete(ctx, token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

// Sweep forgets expired sessions in memory and in the repository, and
// releases their identity scopes when the backend holds them in process.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	now := s.now()
	s.mu.Lock()
	for token, e := range s.live {
		if !now.Before(e.expiresAt) {
			delete(s.live, token)
			s.evict(e.scopeKey)
		}
	}
	s.mu.Unlock()
	return s.repo.Purge(ctx, now)
}

// evict expects s.mu to be held.
func (s *Service) evict(scopeKey string) {
	if ev, ok := s.scoper.(identity.Evicter); ok {
		ev.Evict(scopeKey)
	}
}

// Ready checks the backends sessions depend on.
func (s *Service) Ready(ctx context.Context) error {
	return s.scoper.Ping(ctx)
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}

// attach registers a Synchronizer for sess, reusing one built concurrently.
func (s *Service) attach(sess sessionrepo.Session) *cart.Synchronizer {
	s.mu.Lock()
	if e, ok := s.live[sess.Token]; ok {
		s.mu.Unlock()
		return e.sync
	}
	syn := s.newSync(s.scoper.Scope(sess.ScopeKey))
	s.live[sess.Token] = &entry{sync: syn, scopeKey: sess.ScopeKey, expiresAt: sess.ExpiresAt}
	s.mu.Unlock()

	go s.start(sess.ScopeKey, syn)
	return syn
}

func (s *Service) start(scope string, syn *cart.Synchronizer) {
	ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
	defer cancel()
	if err := syn.Start(ctx); err != nil {
		s.logger.Warn("cart resume failed", zap.String("scope", scope), zap.Error(err))
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
