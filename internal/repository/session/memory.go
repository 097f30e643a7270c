package session

import (
	"context"
	"sync"
	"time"

	"storefront-cart/internal/domain"
)

type memoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemory keeps sessions in process; they do not survive a restart.
func NewMemory() Repository {
	return &memoryRepo{sessions: make(map[string]Session)}
}

func (m *memoryRepo) Create(_ context.Context, s Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Token]; ok {
		return domain.ErrAlreadyExists
	}
	m.sessions[s.Token] = s
	return nil
}

func (m *memoryRepo) Get(_ context.Context, token string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memoryRepo) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[token]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, token)
	return nil
}

func (m *memoryRepo) Purge(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}
