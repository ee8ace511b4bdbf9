// Package cart is the visitor's shopping cart: an ordered list of configured
// banners. Line descriptors are persisted on every mutation; uploaded files
// are not, so after a restore a line may need its artwork uploaded again.
package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vbonduro/bannerfront/internal/artwork"
	"github.com/vbonduro/bannerfront/internal/domain"
	"github.com/vbonduro/bannerfront/internal/store"
)

// Storage is durable key/value storage scoped to one visitor.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type Item struct {
	ID       string
	Config   domain.BannerConfig
	FileName string
	Price    decimal.Decimal
	Quantity int
	// File is the uploaded artwork. It is nil after a restore.
	File *artwork.Handle
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) HasArtwork() bool {
	return i.File != nil
}

type Option func(*Store)

// WithDiscard registers fn to be called with the artwork of every line that
// leaves the cart.
func WithDiscard(fn func(artwork.Handle)) Option {
	return func(s *Store) { s.discard = fn }
}

type Store struct {
	mu      sync.Mutex
	items   []Item
	storage Storage
	logger  *slog.Logger
	discard func(artwork.Handle)
}

// New returns an empty cart.
func New(storage Storage, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{storage: storage, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores a cart from storage. Missing or malformed data yields an
// empty cart.
func Load(ctx context.Context, storage Storage, logger *slog.Logger, opts ...Option) *Store {
	s := New(storage, logger, opts...)

	raw, ok, err := storage.Get(ctx, store.KeyCart)
	if err != nil {
		logger.Warn("cart restore failed", "error", err)
		return s
	}
	if !ok {
		return s
	}

	var pc persistedCart
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		logger.Warn("discarding malformed cart", "error", err)
		return s
	}
	for _, p := range pc.Items {
		if p.ID == "" || p.Quantity < 1 {
			continue
		}
		s.items = append(s.items, p.toItem())
	}
	return s
}

// AddItem appends a new line with quantity 1 and returns it.
func (s *Store) AddItem(ctx context.Context, cfg domain.BannerConfig, file *artwork.Handle, price decimal.Decimal) Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := newItem(cfg, file, price, 1)
	s.items = append(s.items, item)
	s.persist(ctx)
	return item
}

// ReplaceItem removes the line with id and appends a new line built from cfg,
// keeping the old quantity. If id is not in the cart the new line is added
// with quantity 1.
func (s *Store) ReplaceItem(ctx context.Context, id string, cfg domain.BannerConfig, file *artwork.Handle, price decimal.Decimal) Item {
	s.mu.Lock()
	var dropped []artwork.Handle

	quantity := 1
	if i := s.indexOf(id); i >= 0 {
		old := s.items[i]
		quantity = old.Quantity
		if old.File != nil && (file == nil || old.File.Key != file.Key) {
			dropped = append(dropped, *old.File)
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	item := newItem(cfg, file, price, quantity)
	s.items = append(s.items, item)
	s.persist(ctx)
	s.mu.Unlock()

	s.discardAll(dropped)
	return item
}

// RemoveItem deletes the line with id. Unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mu.Lock()
	dropped := s.removeLocked(ctx, id)
	s.mu.Unlock()

	s.discardAll(dropped)
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line; unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) {
	s.mu.Lock()
	if quantity <= 0 {
		dropped := s.removeLocked(ctx, id)
		s.mu.Unlock()
		s.discardAll(dropped)
		return
	}
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.items[i].Quantity = quantity
	s.persist(ctx)
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	var dropped []artwork.Handle
	for _, it := range s.items {
		if it.File != nil {
			dropped = append(dropped, *it.File)
		}
	}
	s.items = nil
	s.persist(ctx)
	s.mu.Unlock()

	s.discardAll(dropped)
}

// TotalPrice is the sum of price × quantity over all lines.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ItemCount is the sum of quantities over all lines.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Items returns the lines in display order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Item(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return Item{}, false
}

// MissingArtwork returns the lines whose uploaded file did not survive a
// restore.
func (s *Store) MissingArtwork() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Item
	for _, it := range s.items {
		if it.File == nil {
			out = append(out, it)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) indexOf(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(ctx context.Context, id string) []artwork.Handle {
	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	old := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.persist(ctx)
	if old.File != nil {
		return []artwork.Handle{*old.File}
	}
	return nil
}

func (s *Store) discardAll(handles []artwork.Handle) {
	if s.discard == nil {
		return
	}
	for _, h := range handles {
		s.discard(h)
	}
}

// persist writes the durable descriptor of every line. Failures are logged;
// the in-memory cart stays authoritative for this session.
func (s *Store) persist(ctx context.Context) {
	pc := persistedCart{Items: make([]persistedItem, 0, len(s.items))}
	for _, it := range s.items {
		pc.Items = append(pc.Items, fromItem(it))
	}
	data, err := json.Marshal(pc)
	if err != nil {
		s.logger.Warn("cart encode failed", "error", err)
		return
	}
	if err := s.storage.Set(ctx, store.KeyCart, string(data)); err != nil {
		s.logger.Warn("cart persist failed", "error", err)
	}
}

func newItem(cfg domain.BannerConfig, file *artwork.Handle, price decimal.Decimal, quantity int) Item {
	item := Item{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Config:   cfg,
		Price:    price,
		Quantity: quantity,
		File:     file,
	}
	if file != nil {
		item.FileName = file.Name
	}
	return item
}
