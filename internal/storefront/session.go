// Package storefront is the backend for the shop's pages. Each shopper,
// identified by the X-User-ID header, gets one cart store, one wishlist and
// one checkout bridge that live for the session.
package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/checkout"
	"github.com/joao-fontenele/storefront-checkout/internal/wishlist"
)

type Session struct {
	UserID   string
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Checkout *checkout.Bridge

	mu       sync.Mutex
	loaded   bool
	lastSeen time.Time
}

// load fetches the server cart the first time the session is used. A failed
// load is retried on the next request.
func (s *Session) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	if _, err := s.Cart.Refresh(ctx); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

// SessionFactory builds the stores for a shopper seen for the first time.
type SessionFactory func(userID string) *Session

type Sessions struct {
	factory SessionFactory
	idle    time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions(factory SessionFactory, idle time.Duration) *Sessions {
	return &Sessions{
		factory:  factory,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

func (s *Sessions) Get(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = s.factory(userID)
		sess.UserID = userID
		s.sessions[userID] = sess
	}
	sess.lastSeen = s.now()
	return sess
}

// Sweep drops sessions idle for longer than the configured timeout and
// closes their cart stores. In-flight requests on a dropped session settle
// without touching state. A parked checkout survives in its slot.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idle)
	n := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			sess.Cart.Close()
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
