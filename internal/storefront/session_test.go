package storefront

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/checkout"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/wishlist"
)

func TestSessions_GetAndSweep(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newFakeCartAPI()
	created := 0
	sessions := NewSessions(func(userID string) *Session {
		created++
		return &Session{
			Cart:     cart.NewStore(api, userID, logger),
			Wishlist: wishlist.NewStore(),
			Checkout: checkout.NewBridge(userID, checkout.NewMemorySlot(time.Minute), checkout.NewAtomic(newFakeOrders()), nil),
		}
	}, 10*time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	a := sessions.Get("u1")
	assert.Same(t, a, sessions.Get("u1"))
	assert.Equal(t, "u1", a.UserID)
	sessions.Get("u2")
	assert.Equal(t, 2, created)

	now = now.Add(5 * time.Minute)
	sessions.Get("u2")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, sessions.Sweep())
	assert.Equal(t, 1, sessions.Len())

	_, err := a.Cart.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreClosed)

	b := sessions.Get("u1")
	assert.NotSame(t, a, b)
	assert.Equal(t, 3, created)
}

func TestSession_LoadRetriesAfterFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newFakeCartAPI()
	api.down = true
	sess := &Session{Cart: cart.NewStore(api, "u1", logger)}

	err := sess.load(context.Background())
	var nerr *domain.NetworkError
	require.True(t, errors.As(err, &nerr))

	api.down = false
	require.NoError(t, sess.load(context.Background()))

	api.down = true
	assert.NoError(t, sess.load(context.Background()), "a loaded session does not refetch")
}
