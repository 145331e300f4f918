package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"quantity": "must be at least 1",
		"email":    "is required",
	}}

	assert.Equal(t, "validation failed: email: is required, quantity: must be at least 1", err.Error())
}

func TestNetworkError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&NetworkError{Op: "cart.update", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cart.update: connection refused", err.Error())

	withStatus := &NetworkError{Op: "orders.create", Status: 500, Err: errors.New("internal server error")}
	assert.Equal(t, "orders.create: status 500: internal server error", withStatus.Error())
}

func TestPartialPersistenceError(t *testing.T) {
	cause := &NetworkError{Op: "orders.create_line", Status: 500, Err: errors.New("boom")}
	err := error(&PartialPersistenceError{
		TransactionID: "tx-1",
		Created:       2,
		Failed:        []LineFailure{{Index: 1, ProductID: "p-2", Err: cause}},
	})

	var partial *PartialPersistenceError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "tx-1", partial.TransactionID)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, 500, netErr.Status)

	assert.Contains(t, err.Error(), "tx-1")
	assert.Contains(t, err.Error(), "1(p-2)")
}

func TestCheckoutState_IsTerminal(t *testing.T) {
	for _, s := range []CheckoutState{CheckoutCompleted, CheckoutPartiallyFailed, CheckoutFailed} {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []CheckoutState{CheckoutIdle, CheckoutPending, CheckoutAwaitingReturn, CheckoutReconciling, CheckoutPersisting} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}
