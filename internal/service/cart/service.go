package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"storefront-cart/internal/domain"
	"storefront-cart/internal/repository/identity"
	"storefront-cart/internal/storefront"
)

// Synchronizer owns the current cart snapshot for one identity scope. Every
// mutation is a round trip to the gateway; the returned cart replaces the
// snapshot wholesale and nothing is ever computed locally.
type Synchronizer struct {
	gateway     gateway
	store       identity.Store
	logger      *zap.Logger
	callTimeout time.Duration
	rejectBusy  bool

	// gate admits one remote operation at a time so responses cannot land
	// out of order.
	gate *semaphore.Weighted

	// starting admits one Start at a time; waiters give up with their context.
	starting *semaphore.Weighted

	mu        sync.RWMutex
	current   *domain.Cart
	loading   bool
	started   bool
	observers map[int]Observer
	nextObs   int
}

type gateway interface {
	CreateCart(ctx context.Context) (*domain.Cart, error)
	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	AddLines(ctx context.Context, cartID string, lines []storefront.CartLineInput) (*domain.Cart, error)
	RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*domain.Cart, error)
	UpdateLines(ctx context.Context, cartID string, lines []storefront.CartLineUpdateInput) (*domain.Cart, error)
}

// Observer is called with a copy of the snapshot after every replacement.
type Observer func(domain.Cart)

type Option func(*Synchronizer)

// WithCallTimeout bounds each gateway call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.callTimeout = d }
}

// WithRejectWhenBusy fails concurrent mutations with KindBusy instead of
// queueing them.
func WithRejectWhenBusy() Option {
	return func(s *Synchronizer) { s.rejectBusy = true }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

func New(gw gateway, store identity.Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		gateway:     gw,
		store:       store,
		logger:      zap.NewNop(),
		callTimeout: 10 * time.Second,
		gate:        semaphore.NewWeighted(1),
		starting:    semaphore.NewWeighted(1),
		loading:     true,
		observers:   make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current cart; ok is false until a cart is current.
func (s *Synchronizer) Snapshot() (domain.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.Cart{}, false
	}
	return s.current.Clone(), true
}

// Loading reports whether the startup resume has yet to complete. A new
// Synchronizer is loading until Start succeeds or fails.
func (s *Synchronizer) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Subscribe registers fn and returns a function that removes it.
func (s *Synchronizer) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Start resumes the remembered cart or creates one. Once it has succeeded
// later calls return immediately; a failed start may be retried. A caller
// whose context ends while another Start is in flight gets KindBusy.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.Started() {
		return nil
	}
	if err := s.starting.Acquire(ctx, 1); err != nil {
		return domain.E(domain.KindBusy, "resume", "gave up waiting for resume in flight", err)
	}
	defer s.starting.Release(1)
	if s.Started() {
		return nil
	}
	s.setLoading(true)
	defer s.setLoading(false)

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return domain.E(domain.KindBusy, "resume", "gave up waiting for in-flight operation", err)
	}
	defer s.gate.Release(1)
	if err := s.resume(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// Started reports whether Start has completed successfully.
func (s *Synchronizer) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Synchronizer) resume(ctx context.Context) error {
	id, ok, err := s.store.Get(ctx)
	if err != nil {
		return domain.E(domain.KindUnknown, "resume", "read cart identity", err)
	}
	if !ok {
		s.logger.Info("no remembered cart, creating one")
		_, err := s.create(ctx)
		return err
	}

	_, err = s.fetch(ctx, id)
	if domain.KindOf(err) == domain.KindCartNotFound {
		s.logger.Info("remembered cart is gone, creating a new one", zap.String("cart", id))
		_, err = s.create(ctx)
	}
	return err
}

// Create asks the gateway for a new empty cart and makes it current.
func (s *Synchronizer) Create(ctx context.Context) (domain.Cart, error) {
	var out domain.Cart
	err := s.withGate(ctx, func(ctx context.Context) error {
		c, err := s.create(ctx)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Fetch loads cart id and makes it current. CartNotFound is returned as is;
// the previous snapshot survives any failure.
func (s *Synchronizer) Fetch(ctx context.Context, id string) (domain.Cart, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Cart{}, domain.E(domain.KindInvalidArgument, "fetch", "cart id required", nil)
	}
	var out domain.Cart
	err := s.withGate(ctx, func(ctx context.Context) error {
		c, err := s.fetch(ctx, id)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// AddLine adds quantity of variantID. Without a current cart one is created
// first, and the add is attempted exactly once against it.
func (s *Synchronizer) AddLine(ctx context.Context, variantID string, quantity int) (domain.Cart, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.Cart{}, domain.E(domain.KindInvalidArgument, "addLine", "variant id required", nil)
	}
	if quantity < 1 {
		return domain.Cart{}, domain.E(domain.KindInvalidArgument, "addLine", "quantity must be at least 1", nil)
	}
	var out domain.Cart
	err := s.withGate(ctx, func(ctx context.Context) error {
		cartID := s.currentID()
		if cartID == "" {
			created, err := s.create(ctx)
			if err != nil {
				return domain.E(domain.KindGatewayError, "addLine", "could not establish a cart", err)
			}
			cartID = created.ID
		}
		c, err := s.call(ctx, func(ctx context.Context) (*domain.Cart, error) {
			return s.gateway.AddLines(ctx, cartID, []storefront.CartLineInput{{MerchandiseID: variantID, Quantity: quantity}})
		})
		if err != nil {
			return err
		}
		out = s.replace(c)
		return nil
	})
	return out, err
}

// RemoveLine removes lineID. Unknown lines are left to the gateway.
func (s *Synchronizer) RemoveLine(ctx context.Context, lineID string) (domain.Cart, error) {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return domain.Cart{}, domain.E(domain.KindInvalidArgument, "removeLine", "line id required", nil)
	}
	var out domain.Cart
	err := s.withGate(ctx, func(ctx context.Context) error {
		cartID := s.currentID()
		if cartID == "" {
			return domain.E(domain.KindInvalidState, "removeLine", "no current cart", nil)
		}
		c, err := s.call(ctx, func(ctx context.Context) (*domain.Cart, error) {
			return s.gateway.RemoveLines(ctx, cartID, []string{lineID})
		})
		if err != nil {
			return err
		}
		out = s.replace(c)
		return nil
	})
	return out, err
}

// UpdateLineQuantity sets the quantity of lineID. Removal goes through
// RemoveLine, so quantity must be at least 1.
func (s *Synchronizer) UpdateLineQuantity(ctx context.Context, lineID string, quantity int) (domain.Cart, error) {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return domain.Cart{}, domain.E(domain.KindInvalidArgument, "updateLineQuantity", "line id required", nil)
	}
	if quantity < 1 {
		return domain.Cart{}, domain.E(domain.KindInvalidArgument, "updateLineQuantity", "quantity must be at least 1, use removeLine to drop a line", nil)
	}
	var out domain.Cart
	err := s.withGate(ctx, func(ctx context.Context) error {
		cartID := s.currentID()
		if cartID == "" {
			return domain.E(domain.KindInvalidState, "updateLineQuantity", "no current cart", nil)
		}
		c, err := s.call(ctx, func(ctx context.Context) (*domain.Cart, error) {
			return s.gateway.UpdateLines(ctx, cartID, []storefront.CartLineUpdateInput{{ID: lineID, Quantity: quantity}})
		})
		if err != nil {
			return err
		}
		out = s.replace(c)
		return nil
	})
	return out, err
}

// create and fetch expect the gate to be held.

func (s *Synchronizer) create(ctx context.Context) (domain.Cart, error) {
	c, err := s.call(ctx, s.gateway.CreateCart)
	if err != nil {
		return domain.Cart{}, err
	}
	out := s.replace(c)
	s.persist(ctx, out.ID)
	return out, nil
}

func (s *Synchronizer) fetch(ctx context.Context, id string) (domain.Cart, error) {
	c, err := s.call(ctx, func(ctx context.Context) (*domain.Cart, error) {
		return s.gateway.GetCart(ctx, id)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	out := s.replace(c)
	s.persist(ctx, out.ID)
	return out, nil
}

// persist mirrors id into the identity store when it differs. A failed write
// keeps the cart current; only resumption after a restart is lost.
func (s *Synchronizer) persist(ctx context.Context, id string) {
	stored, ok, err := s.store.Get(ctx)
	if err == nil && ok && stored == id {
		return
	}
	if err := s.store.Set(ctx, id); err != nil {
		s.logger.Error("persist cart identity", zap.String("cart", id), zap.Error(err))
	}
}

// call runs one gateway operation under the per-call timeout. Errors that
// are not already classified become gateway errors.
func (s *Synchronizer) call(ctx context.Context, fn func(context.Context) (*domain.Cart, error)) (*domain.Cart, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	c, err := fn(ctx)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.E(domain.KindGatewayError, "gateway", "", err)
		}
		s.logger.Warn("gateway call failed", zap.Stringer("kind", domain.KindOf(err)), zap.Error(err))
		return nil, err
	}
	if c == nil {
		return nil, domain.E(domain.KindGatewayError, "gateway", "empty cart response", nil)
	}
	return c, nil
}

func (s *Synchronizer) withGate(ctx context.Context, fn func(context.Context) error) error {
	if s.rejectBusy {
		if !s.gate.TryAcquire(1) {
			return domain.E(domain.KindBusy, "cart", "another cart operation is in flight", nil)
		}
	} else if err := s.gate.Acquire(ctx, 1); err != nil {
		return domain.E(domain.KindBusy, "cart", "gave up waiting for in-flight operation", err)
	}
	defer s.gate.Release(1)
	return fn(ctx)
}

// replace installs c as the current snapshot and notifies observers.
func (s *Synchronizer) replace(c *domain.Cart) domain.Cart {
	if c.TotalQuantity != c.LineQuantity() {
		s.logger.Warn("total quantity differs from line sum",
			zap.String("cart", c.ID),
			zap.Int("totalQuantity", c.TotalQuantity),
			zap.Int("lineSum", c.LineQuantity()),
		)
	}
	snap := c.Clone()

	s.mu.Lock()
	if s.current != nil && s.current.ID != snap.ID {
		s.logger.Info("current cart changed", zap.String("from", s.current.ID), zap.String("to", snap.ID))
	}
	s.current = &snap
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(snap.Clone())
	}
	return snap.Clone()
}

func (s *Synchronizer) currentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

func (s *Synchronizer) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
