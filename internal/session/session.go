// Package session keeps the application state of each visitor. Durable
// parts (cart lines, credentials) are restored from local storage when a
// visitor is first seen; volatile parts (artwork handles, the configurator,
// notifications) live only as long as the visitor stays in the registry.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vbonduro/bannerfront/internal/artwork"
	"github.com/vbonduro/bannerfront/internal/auth"
	"github.com/vbonduro/bannerfront/internal/cart"
	"github.com/vbonduro/bannerfront/internal/configurator"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/quote"
	"github.com/vbonduro/bannerfront/internal/store"
	"github.com/vbonduro/bannerfront/internal/toast"
)

// MaxVisitors bounds the number of visitors held in memory.
const MaxVisitors = 10000

type State struct {
	VisitorID string
	Cart      *cart.Store
	Auth      *auth.Store
	Flow      *configurator.Flow
	Quotes    *quote.Tracker
	Toasts    *toast.Queue

	mu          sync.Mutex
	adminOrders []domain.Order
}

// AdminOrders returns the order list last fetched for the admin dashboard.
func (s *State) AdminOrders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminOrders
}

func (s *State) SetAdminOrders(orders []domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminOrders = orders
}

type Registry struct {
	mu        sync.Mutex
	visitors  *expirable.LRU[string, *State]
	storage   *store.LocalStorage
	files     artwork.Store
	maxUpload int64
	logger    *slog.Logger
}

func NewRegistry(storage *store.LocalStorage, files artwork.Store, maxUpload int64, idleTTL time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{storage: storage, files: files, maxUpload: maxUpload, logger: logger}
	r.visitors = expirable.NewLRU[string, *State](MaxVisitors, r.onEvict, idleTTL)
	return r
}

// Get returns the visitor's state, restoring it from local storage if the
// visitor is not in memory. Each call extends the idle timeout.
func (r *Registry) Get(ctx context.Context, visitorID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.visitors.Get(visitorID); ok {
		r.visitors.Add(visitorID, st)
		return st
	}

	st := r.restore(ctx, visitorID)
	r.visitors.Add(visitorID, st)
	return st
}

func (r *Registry) restore(ctx context.Context, visitorID string) *State {
	scoped := r.storage.Scope(visitorID)
	logger := r.logger.With("visitor", visitorID)

	c := cart.Load(ctx, scoped, logger, cart.WithDiscard(r.discard))
	a := auth.NewStore(scoped, logger)
	a.Initialize(ctx)

	logger.Debug("visitor restored", "cart_lines", c.Len(), "authenticated", a.IsAuthenticated())

	return &State{
		VisitorID: visitorID,
		Cart:      c,
		Auth:      a,
		Flow:      configurator.New(c, r.files, r.maxUpload),
		Quotes:    &quote.Tracker{},
		Toasts:    &toast.Queue{},
	}
}

// discard deletes artwork that no cart line references any more.
func (r *Registry) discard(h artwork.Handle) {
	if err := r.files.Delete(context.Background(), h.Key); err != nil {
		r.logger.Warn("failed to delete artwork", "key", h.Key, "error", err)
	}
}

// onEvict drops the volatile artwork of a visitor leaving memory. Their cart
// lines survive in local storage without files.
func (r *Registry) onEvict(visitorID string, st *State) {
	for _, it := range st.Cart.Items() {
		if it.File != nil {
			r.discard(*it.File)
		}
	}
	r.logger.Debug("visitor evicted", "visitor", visitorID)
}

// Forget evicts a visitor immediately.
func (r *Registry) Forget(visitorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visitors.Remove(visitorID)
}

func (r *Registry) Len() int {
	return r.visitors.Len()
}
