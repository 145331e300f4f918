package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// Slot holds at most one serialized PendingOrder per shopper while the
// browser is away at the payment gateway.
type Slot interface {
	// Put fails with domain.ErrCheckoutInProgress when the shopper already
	// has a pending order.
	Put(ctx context.Context, userID string, data []byte) error
	// Get fails with domain.ErrNoPendingOrder when the slot is empty.
	Get(ctx context.Context, userID string) ([]byte, error)
	Delete(ctx context.Context, userID string) error
}

const DefaultSlotTTL = 30 * time.Minute

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemorySlot is a process-local Slot, suitable for a single storefront
// instance and for tests.
type MemorySlot struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemorySlot(ttl time.Duration) *MemorySlot {
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	return &MemorySlot{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemorySlot) Put(_ context.Context, userID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[userID]; ok && s.now().Before(e.expires) {
		return domain.ErrCheckoutInProgress
	}
	s.entries[userID] = memoryEntry{
		data:    append([]byte(nil), data...),
		expires: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemorySlot) Get(_ context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil, domain.ErrNoPendingOrder
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, userID)
		return nil, domain.ErrNoPendingOrder
	}
	return append([]byte(nil), e.data...), nil
}

func (s *MemorySlot) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// RedisSlot keeps pending orders in Redis so any storefront instance can
// reconcile the shopper's return from the gateway.
type RedisSlot struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisSlot(client redis.Cmdable, ttl time.Duration) *RedisSlot {
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	return &RedisSlot{client: client, ttl: ttl}
}

func (s *RedisSlot) Put(ctx context.Context, userID string, data []byte) error {
	ok, err := s.client.SetNX(ctx, slotKey(userID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return domain.ErrCheckoutInProgress
	}
	return nil
}

func (s *RedisSlot) Get(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.client.Get(ctx, slotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNoPendingOrder
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *RedisSlot) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, slotKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func slotKey(userID string) string {
	return fmt.Sprintf("checkout:pending:%s", userID)
}
