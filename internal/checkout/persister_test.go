package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanOut_Persist(t *testing.T) {
	t.Run("issues exactly one request per line", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		svc := newFakeOrderService()
		order := samplePendingOrder()

		created, err := NewFanOut(svc, 0, discardLogger()).Persist(context.Background(), order, nil)

		require.NoError(t, err)
		assert.Equal(t, 3, created)
		assert.Equal(t, 3, svc.lineCalls)
		assert.Equal(t, 3, svc.linesFor(order.TransactionID))

		keys := append([]string(nil), svc.keys...)
		sort.Strings(keys)
		assert.Equal(t, []string{
			order.TransactionID + ":0",
			order.TransactionID + ":1",
			order.TransactionID + ":2",
		}, keys)
	})

	t.Run("one failure is a partial persistence error", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		svc := newFakeOrderService()
		svc.failProducts["B"] = 1
		order := samplePendingOrder()

		created, err := NewFanOut(svc, 2, discardLogger()).Persist(context.Background(), order, nil)

		var perr *domain.PartialPersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 2, created)
		assert.Equal(t, 3, svc.lineCalls)
		assert.Equal(t, order.TransactionID, perr.TransactionID)
		require.Len(t, perr.Failed, 1)
		assert.Equal(t, 1, perr.Failed[0].Index)
		assert.Equal(t, "B", perr.Failed[0].ProductID)

		var nerr *domain.NetworkError
		assert.True(t, errors.As(err, &nerr))
		assert.Equal(t, 500, nerr.Status)
	})

	t.Run("subset of indexes", func(t *testing.T) {
		svc := newFakeOrderService()
		order := samplePendingOrder()

		created, err := NewFanOut(svc, 0, discardLogger()).Persist(context.Background(), order, []int{2})

		require.NoError(t, err)
		assert.Equal(t, 1, created)
		assert.Equal(t, []string{order.TransactionID + ":2"}, svc.keys)
	})

	t.Run("out of range index", func(t *testing.T) {
		svc := newFakeOrderService()

		_, err := NewFanOut(svc, 0, discardLogger()).Persist(context.Background(), samplePendingOrder(), []int{7})

		var derr *domain.DataIntegrityError
		assert.ErrorAs(t, err, &derr)
		assert.Zero(t, svc.lineCalls)
	})
}

func TestAtomic_Persist(t *testing.T) {
	t.Run("single call creates every line", func(t *testing.T) {
		svc := newFakeOrderService()
		order := samplePendingOrder()

		created, err := NewAtomic(svc).Persist(context.Background(), order, []int{1})

		require.NoError(t, err)
		assert.Equal(t, 3, created)
		assert.Equal(t, 1, svc.orderCalls)
		assert.Len(t, svc.orders[order.TransactionID].Lines, 3)
	})

	t.Run("failure creates nothing", func(t *testing.T) {
		svc := newFakeOrderService()
		svc.orderErr = &domain.NetworkError{Op: "create order", Status: 503, Err: errors.New("unavailable")}

		created, err := NewAtomic(svc).Persist(context.Background(), samplePendingOrder(), nil)

		require.Error(t, err)
		assert.Zero(t, created)
		assert.Empty(t, svc.orders)
	})
}

func TestParsePersisterKind(t *testing.T) {
	kind, err := ParsePersisterKind("")
	require.NoError(t, err)
	assert.Equal(t, PersisterAtomic, kind)

	kind, err = ParsePersisterKind("fanout")
	require.NoError(t, err)
	assert.Equal(t, PersisterFanOut, kind)

	_, err = ParsePersisterKind("saga")
	assert.ErrorIs(t, err, ErrUnknownPersister)
}
