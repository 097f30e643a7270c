package identity

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu sync.RWMutex
	id string
}

// NewMemory returns a process-local store, optionally seeded with an identifier.
func NewMemory(seed string) Store {
	return &memoryStore{id: seed}
}

func (m *memoryStore) Get(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id, m.id != "", nil
}

func (m *memoryStore) Set(_ context.Context, id string) error {
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
	return nil
}

type memoryScoper struct {
	mu     sync.Mutex
	stores map[string]Store
}

// NewMemoryScoper keeps one in-memory store per scope key until the scope is
// evicted.
func NewMemoryScoper() Scoper {
	return &memoryScoper{stores: make(map[string]Store)}
}

func (m *memoryScoper) Scope(key string) Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[key]
	if !ok {
		s = NewMemory("")
		m.stores[key] = s
	}
	return s
}

func (m *memoryScoper) Evict(key string) {
	m.mu.Lock()
	delete(m.stores, key)
	m.mu.Unlock()
}

func (m *memoryScoper) Ping(_ context.Context) error {
	return nil
}
