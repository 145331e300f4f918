// Package cart holds the per-shopper cart cache. The cart service owns the
// truth; Store keeps a local copy that is updated optimistically and rolled
// back when the service rejects a change.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/pricing"
)

type Snapshot struct {
	UserID     string            `json:"user_id"`
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"total_items"`
	TotalPrice float64           `json:"total_price"`
}

type Store struct {
	api    API
	userID string
	logger *slog.Logger

	mu       sync.Mutex
	items    []domain.CartItem
	inflight map[string]struct{}
	subs     map[int]func(Snapshot)
	nextSub  int
	closed   bool

	loads singleflight.Group
}

func NewStore(api API, userID string, logger *slog.Logger) *Store {
	return &Store{
		api:      api,
		userID:   userID,
		logger:   logger.With("user_id", userID),
		inflight: make(map[string]struct{}),
		subs:     make(map[int]func(Snapshot)),
	}
}

// AddToCart creates a line or increments the matching (product, size, color)
// line on the server, then merges the returned line into the local copy.
func (s *Store) AddToCart(ctx context.Context, product domain.Product, opts AddOptions) (domain.Cart, error) {
	if product.ID == "" {
		return domain.Cart{}, domain.NewValidationError("product_id", "is required")
	}
	if opts.Quantity < 0 {
		return domain.Cart{}, domain.NewValidationError("quantity", "must be at least 1")
	}
	quantity := pricing.NormalizeQuantity(opts.Quantity)

	key := "add:" + product.ID + "|" + opts.Size + "|" + opts.Color
	if err := s.acquire(key); err != nil {
		return domain.Cart{}, err
	}
	defer s.release(key)

	item, err := s.api.AddItem(ctx, s.userID, AddItemRequest{
		ProductID: product.ID,
		Quantity:  quantity,
		Size:      opts.Size,
		Color:     opts.Color,
	})
	if err != nil {
		s.logger.Warn("cart add failed", "product_id", product.ID, "error", err)
		return domain.Cart{}, err
	}
	if item.ID == "" {
		return domain.Cart{}, &domain.DataIntegrityError{Reason: "cart service returned a line without id"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, domain.ErrStoreClosed
	}
	idx := slices.IndexFunc(s.items, func(i domain.CartItem) bool { return i.ID == item.ID })
	if idx < 0 {
		idx = slices.IndexFunc(s.items, func(i domain.CartItem) bool {
			return i.SameConfiguration(item.ProductID, item.Size, item.Color)
		})
	}
	if idx >= 0 {
		s.items[idx] = item
	} else {
		s.items = append(s.items, item)
	}
	cart := s.cartLocked()
	s.mu.Unlock()

	s.logger.Info("cart item added", "item_id", item.ID, "product_id", item.ProductID, "quantity", item.Quantity)
	s.notify()
	return cart, nil
}

// UpdateQuantity rejects quantities below 1 without contacting the server.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, domain.NewValidationError("quantity", "must be at least 1")
	}

	if err := s.acquire(itemID); err != nil {
		return domain.Cart{}, err
	}
	defer s.release(itemID)

	s.mu.Lock()
	idx := s.indexLocked(itemID)
	if idx < 0 {
		s.mu.Unlock()
		return domain.Cart{}, fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
	}
	previous := s.items[idx].Quantity
	s.items[idx].Quantity = quantity
	s.mu.Unlock()
	s.notify()

	item, err := s.api.UpdateQuantity(ctx, s.userID, itemID, quantity)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, domain.ErrStoreClosed
	}
	idx = s.indexLocked(itemID)
	if err != nil {
		if idx >= 0 {
			s.items[idx].Quantity = previous
		}
		s.mu.Unlock()
		s.logger.Warn("cart quantity update rolled back", "item_id", itemID, "quantity", quantity, "error", err)
		s.notify()
		return domain.Cart{}, err
	}
	if idx >= 0 && item.ID == itemID {
		s.items[idx] = item
	}
	cart := s.cartLocked()
	s.mu.Unlock()

	s.logger.Info("cart quantity updated", "item_id", itemID, "quantity", quantity)
	s.notify()
	return cart, nil
}

// RemoveFromCart is idempotent. An id that is not in the cart is a no-op and
// issues no request; a 404 from the server counts as success.
func (s *Store) RemoveFromCart(ctx context.Context, itemID string) (domain.Cart, error) {
	if err := s.acquire(itemID); err != nil {
		return domain.Cart{}, err
	}
	defer s.release(itemID)

	s.mu.Lock()
	idx := s.indexLocked(itemID)
	if idx < 0 {
		cart := s.cartLocked()
		s.mu.Unlock()
		return cart, nil
	}
	removed := s.items[idx]
	s.items = slices.Delete(s.items, idx, idx+1)
	s.mu.Unlock()
	s.notify()

	err := s.api.RemoveItem(ctx, s.userID, itemID)
	if errors.Is(err, domain.ErrNotFound) {
		err = nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, domain.ErrStoreClosed
	}
	if err != nil {
		if s.indexLocked(itemID) < 0 {
			s.items = slices.Insert(s.items, min(idx, len(s.items)), removed)
		}
		s.mu.Unlock()
		s.logger.Warn("cart removal rolled back", "item_id", itemID, "error", err)
		s.notify()
		return domain.Cart{}, err
	}
	cart := s.cartLocked()
	s.mu.Unlock()

	s.logger.Info("cart item removed", "item_id", itemID)
	return cart, nil
}

// Refresh replaces the local copy with the server's cart. Concurrent callers
// share one request.
func (s *Store) Refresh(ctx context.Context) (domain.Cart, error) {
	if s.isClosed() {
		return domain.Cart{}, domain.ErrStoreClosed
	}

	v, err, _ := s.loads.Do(s.userID, func() (any, error) {
		return s.api.GetCart(ctx, s.userID)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	items := v.([]domain.CartItem)

	for _, item := range items {
		if item.ID == "" {
			return domain.Cart{}, &domain.DataIntegrityError{Reason: "cart service returned a line without id"}
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Cart{}, domain.ErrStoreClosed
	}
	s.items = slices.Clone(items)
	cart := s.cartLocked()
	s.mu.Unlock()

	s.notify()
	return cart, nil
}

// Clear empties the cart on the server, then locally.
func (s *Store) Clear(ctx context.Context) error {
	const key = "clear"
	if err := s.acquire(key); err != nil {
		return err
	}
	defer s.release(key)

	if err := s.api.ClearCart(ctx, s.userID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrStoreClosed
	}
	s.items = nil
	s.mu.Unlock()

	s.logger.Info("cart cleared")
	s.notify()
	return nil
}

func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.CartTotal(s.items)
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.TotalItems(s.items)
}

func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneLocked()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a fresh snapshot after every local
// state change. The returned func unregisters it.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close detaches the store. Requests still in flight settle without touching
// local state, and later calls fail with ErrStoreClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.subs)
}

func (s *Store) acquire(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	if _, busy := s.inflight[key]; busy {
		return domain.ErrSubmitting
	}
	s.inflight[key] = struct{}{}
	return nil
}

func (s *Store) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) indexLocked(itemID string) int {
	return slices.IndexFunc(s.items, func(i domain.CartItem) bool { return i.ID == itemID })
}

func (s *Store) cartLocked() domain.Cart {
	return domain.Cart{UserID: s.userID, Items: s.cloneLocked()}
}

func (s *Store) cloneLocked() []domain.CartItem {
	if len(s.items) == 0 {
		return []domain.CartItem{}
	}
	return slices.Clone(s.items)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		UserID:     s.userID,
		Items:      s.cloneLocked(),
		TotalItems: pricing.TotalItems(s.items),
		TotalPrice: pricing.CartTotal(s.items),
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	if s.closed || len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
