package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func setupRedisSlot(t *testing.T) (*RedisSlot, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlot(client, 10*time.Minute), mr
}

func TestSlots(t *testing.T) {
	slots := map[string]func(t *testing.T) Slot{
		"memory": func(t *testing.T) Slot { return NewMemorySlot(time.Minute) },
		"redis": func(t *testing.T) Slot {
			s, _ := setupRedisSlot(t)
			return s
		},
	}

	for name, newSlot := range slots {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			slot := newSlot(t)

			_, err := slot.Get(ctx, "u1")
			assert.ErrorIs(t, err, domain.ErrNoPendingOrder)

			require.NoError(t, slot.Put(ctx, "u1", []byte(`{"a":1}`)))
			assert.ErrorIs(t, slot.Put(ctx, "u1", []byte(`{"b":2}`)), domain.ErrCheckoutInProgress)
			require.NoError(t, slot.Put(ctx, "u2", []byte(`{"c":3}`)))

			data, err := slot.Get(ctx, "u1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(data))

			data, err = slot.Get(ctx, "u1")
			require.NoError(t, err, "reads do not consume the slot")
			assert.JSONEq(t, `{"a":1}`, string(data))

			require.NoError(t, slot.Delete(ctx, "u1"))
			require.NoError(t, slot.Delete(ctx, "u1"))
			_, err = slot.Get(ctx, "u1")
			assert.ErrorIs(t, err, domain.ErrNoPendingOrder)

			_, err = slot.Get(ctx, "u2")
			assert.NoError(t, err)
		})
	}
}

func TestMemorySlot_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	slot := NewMemorySlot(time.Minute)
	slot.now = func() time.Time { return now }

	require.NoError(t, slot.Put(ctx, "u1", []byte("x")))

	now = now.Add(2 * time.Minute)

	_, err := slot.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoPendingOrder)
	assert.NoError(t, slot.Put(ctx, "u1", []byte("y")))
}

func TestRedisSlot_KeyAndTTL(t *testing.T) {
	ctx := context.Background()
	slot, mr := setupRedisSlot(t)

	require.NoError(t, slot.Put(ctx, "u1", []byte("x")))

	assert.True(t, mr.Exists("checkout:pending:u1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("checkout:pending:u1"))

	mr.FastForward(11 * time.Minute)

	_, err := slot.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoPendingOrder)
}
