// Package wishlist keeps a shopper's saved products. Items are snapshots taken
// when they were added; nothing here talks to a server.
package wishlist

import (
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type Snapshot struct {
	Items        []domain.WishlistItem `json:"items"`
	TotalValue   float64               `json:"total_value"`
	InStockCount int                   `json:"in_stock_count"`
}

type Store struct {
	mu      sync.Mutex
	items   []domain.WishlistItem
	subs    map[int]func(Snapshot)
	nextSub int
	now     func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		subs: make(map[int]func(Snapshot)),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores item unless a product with the same id is already saved. It
// reports whether the wishlist changed.
func (s *Store) Add(item domain.WishlistItem) bool {
	s.mu.Lock()
	if slices.ContainsFunc(s.items, func(i domain.WishlistItem) bool { return i.ProductID == item.ProductID }) {
		s.mu.Unlock()
		return false
	}
	if item.AddedDate.IsZero() {
		item.AddedDate = s.now().UTC()
	}
	s.items = append(s.items, item)
	s.mu.Unlock()

	s.notify()
	return true
}

// Remove deletes the item with the given product id. Missing ids are ignored.
func (s *Store) Remove(productID string) bool {
	s.mu.Lock()
	idx := slices.IndexFunc(s.items, func(i domain.WishlistItem) bool { return i.ProductID == productID })
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = slices.Delete(s.items, idx, idx+1)
	s.mu.Unlock()

	s.notify()
	return true
}

// Clear drops every item. There is no undo.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	s.notify()
}

func (s *Store) Items() []domain.WishlistItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneLocked()
}

func (s *Store) TotalValue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalValue(s.items)
}

// InStockCount counts items not explicitly marked out of stock.
func (s *Store) InStockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return inStockCount(s.items)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

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

func (s *Store) cloneLocked() []domain.WishlistItem {
	if len(s.items) == 0 {
		return []domain.WishlistItem{}
	}
	return slices.Clone(s.items)
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:        s.cloneLocked(),
		TotalValue:   totalValue(s.items),
		InStockCount: inStockCount(s.items),
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	if len(s.subs) == 0 {
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

func totalValue(items []domain.WishlistItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Price
	}
	return total
}

func inStockCount(items []domain.WishlistItem) int {
	var n int
	for _, item := range items {
		if item.InStock == nil || *item.InStock {
			n++
		}
	}
	return n
}
