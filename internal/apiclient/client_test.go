package apiclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, settings BreakerSettings) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test", srv.URL, srv.Client(), settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Do(t *testing.T) {
	t.Run("decodes success body and sends headers", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/things", r.URL.Path)
			assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"abc"}`))
		}, DefaultBreakerSettings())

		var out struct {
			ID string `json:"id"`
		}
		status, err := c.Do(context.Background(), "create thing", http.MethodPost, "/things", map[string]string{"a": "b"}, &out, WithHeader("Idempotency-Key", "key-1"))

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "abc", out.ID)
	})

	t.Run("no content leaves out untouched", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}, DefaultBreakerSettings())

		out := map[string]string{"keep": "me"}
		_, err := c.Do(context.Background(), "delete", http.MethodDelete, "/x", nil, &out)

		require.NoError(t, err)
		assert.Equal(t, "me", out["keep"])
	})

	t.Run("422 becomes a field keyed validation error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":{"quantity":"must be at least 1"}}`))
		}, DefaultBreakerSettings())

		_, err := c.Do(context.Background(), "create", http.MethodPost, "/x", nil, nil)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "must be at least 1", verr.Fields["quantity"])
	})

	t.Run("404 wraps ErrNotFound", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, DefaultBreakerSettings())

		status, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, nil)

		assert.Equal(t, http.StatusNotFound, status)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("500 becomes a network error with status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		}, DefaultBreakerSettings())

		_, err := c.Do(context.Background(), "create line", http.MethodPost, "/x", nil, nil)

		var nerr *domain.NetworkError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, http.StatusInternalServerError, nerr.Status)
		assert.Equal(t, "create line: status 500: boom", nerr.Error())
	})

	t.Run("malformed success body is a data integrity error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}, DefaultBreakerSettings())

		var out map[string]any
		_, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, &out)

		var derr *domain.DataIntegrityError
		assert.ErrorAs(t, err, &derr)
	})

	t.Run("transport failure is a network error without status", func(t *testing.T) {
		c := New("test", "http://127.0.0.1:1", &http.Client{Timeout: time.Second}, DefaultBreakerSettings(), slog.New(slog.NewTextHandler(io.Discard, nil)))

		_, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, nil)

		var nerr *domain.NetworkError
		require.ErrorAs(t, err, &nerr)
		assert.Zero(t, nerr.Status)
	})
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1})

	for range 2 {
		_, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, nil)
		require.Error(t, err)
	}

	_, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, nil)

	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute, HalfOpenRequests: 1})

	for range 3 {
		_, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, nil)
		require.ErrorIs(t, err, domain.ErrNotFound)
	}

	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 3 {
		_, err := c.Do(ctx, "get", http.MethodGet, "/x", nil, nil)
		require.ErrorIs(t, err, context.Canceled)
		var nerr *domain.NetworkError
		assert.ErrorAs(t, err, &nerr)
	}

	_, err := c.Do(context.Background(), "get", http.MethodGet, "/x", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
