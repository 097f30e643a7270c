package identity

import "context"

// Store remembers at most one cart identifier for one identity scope
// (a browser session, a CLI state file).
type Store interface {
	// Get returns the stored identifier; ok is false when none is stored.
	Get(ctx context.Context) (id string, ok bool, err error)
	Set(ctx context.Context, id string) error
}

// Scoper hands out stores for named scopes backed by one shared backend.
type Scoper interface {
	Scope(key string) Store
	Ping(ctx context.Context) error
}

// Evicter is implemented by scopers that keep per-scope state in process and
// must be told when a scope is gone.
type Evicter interface {
	Evict(key string)
}
