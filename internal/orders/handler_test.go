package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	lines   map[string]domain.OrderLineRecord
	orders  map[string]*domain.Order
	intents map[string]*domain.OrderIntent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lines:   make(map[string]domain.OrderLineRecord),
		orders:  make(map[string]*domain.Order),
		intents: make(map[string]*domain.OrderIntent),
	}
}

func (f *fakeRepo) CreateLine(_ context.Context, line domain.OrderLineRecord, key string) (domain.OrderLineRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.lines[key]; ok {
		return existing, false, nil
	}
	line.ID = fmt.Sprintf("line-%d", len(f.lines)+1)
	f.lines[key] = line
	return line, true, nil
}

func (f *fakeRepo) LinesByOrder(_ context.Context, orderID string) ([]domain.OrderLineRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OrderLineRecord
	for _, l := range f.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) createLocked(p domain.PendingOrder) (*domain.Order, bool) {
	if o, ok := f.orders[p.TransactionID]; ok {
		return o, false
	}
	o := &domain.Order{ID: p.TransactionID, UserID: p.Customer.UserID, UserName: p.Customer.Name, Amounts: p.Amounts, Status: domain.OrderStatusPaid}
	for _, l := range p.Lines {
		o.Lines = append(o.Lines, domain.OrderLineRecord{OrderID: p.TransactionID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	f.orders[o.ID] = o
	if in, ok := f.intents[o.ID]; ok {
		in.Status = domain.IntentStatusFinalized
	}
	return o, true
}

func (f *fakeRepo) CreateOrder(_ context.Context, p domain.PendingOrder) (*domain.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, created := f.createLocked(p)
	return o, created, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id], nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	o.Status = status
	return o, nil
}

func (f *fakeRepo) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateIntent(_ context.Context, p domain.PendingOrder) (*domain.OrderIntent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.intents[p.TransactionID]; ok {
		return in, false, nil
	}
	in := &domain.OrderIntent{ID: p.TransactionID, Order: p, Status: domain.IntentStatusPending}
	f.intents[in.ID] = in
	return in, true, nil
}

func (f *fakeRepo) GetIntent(_ context.Context, id string) (*domain.OrderIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intents[id], nil
}

func (f *fakeRepo) FinalizeIntent(_ context.Context, id string) (*domain.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	o, created := f.createLocked(in.Order)
	in.Status = domain.IntentStatusFinalized
	return o, created, nil
}

func (f *fakeRepo) FailIntent(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok || in.Status != domain.IntentStatusPending {
		return false, nil
	}
	in.Status = domain.IntentStatusFailed
	return true, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *fakePublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func newTestMux(repo Repository, pub Publisher) *http.ServeMux {
	h := NewHandler(repo, pub, "s3cret", slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /order-lines", h.HandleCreateLine)
	mux.HandleFunc("POST /orders", h.HandleCreate)
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("GET /orders/{id}", h.HandleGet)
	mux.HandleFunc("GET /orders/{id}/lines", h.HandleListLines)
	mux.HandleFunc("PATCH /orders/{id}/status", h.HandleUpdateStatus)
	mux.HandleFunc("POST /intents", h.HandleCreateIntent)
	mux.HandleFunc("GET /intents/{id}", h.HandleGetIntent)
	mux.HandleFunc("POST /webhooks/payment", h.HandlePaymentWebhook)
	return mux
}

func do(mux http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const validLine = `{"order_id":"tx-1","user_name":"Ada","product_id":"A","product_name":"Shirt","payment_method":"card","quantity":2,"price":100}`

const validOrder = `{
	"transaction_id": "tx-1",
	"customer": {"user_id": "u1", "name": "Ada", "email": "ada@example.com", "phone": "1", "address": "a", "city": "c"},
	"payment_method": "card",
	"lines": [
		{"product_id": "A", "product_name": "Shirt", "quantity": 2, "price": 100},
		{"product_id": "B", "product_name": "Hat", "quantity": 1, "price": 50, "discounted_price": 40}
	],
	"amounts": {"subtotal": 240, "total": 240},
	"currency": "USD"
}`

func TestHandler_HandleCreateLine(t *testing.T) {
	t.Run("creates then replays by idempotency key", func(t *testing.T) {
		mux := newTestMux(newFakeRepo(), nil)
		headers := map[string]string{"Idempotency-Key": "tx-1:0"}

		rec := do(mux, http.MethodPost, "/order-lines", validLine, headers)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var first domain.OrderLineRecord
		if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		rec = do(mux, http.MethodPost, "/order-lines", validLine, headers)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 on replay, got %d", rec.Code)
		}
		var second domain.OrderLineRecord
		if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("expected replay to return line %s, got %s", first.ID, second.ID)
		}
	})

	t.Run("returns field keyed errors", func(t *testing.T) {
		mux := newTestMux(newFakeRepo(), nil)

		rec := do(mux, http.MethodPost, "/order-lines", `{"order_id":"tx-1","product_id":"A","quantity":0}`, nil)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", rec.Code)
		}
		var resp struct {
			Errors map[string]string `json:"errors"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		for _, field := range []string{"user_name", "product_name", "payment_method", "quantity"} {
			if _, ok := resp.Errors[field]; !ok {
				t.Errorf("expected error for %s, got %v", field, resp.Errors)
			}
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		mux := newTestMux(newFakeRepo(), nil)

		rec := do(mux, http.MethodPost, "/order-lines", `{`, nil)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleCreate(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	mux := newTestMux(repo, pub)

	rec := do(mux, http.MethodPost, "/orders", validOrder, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(mux, http.MethodPost, "/orders", validOrder, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 on replay, got %d", rec.Code)
	}

	if len(pub.keys) != 1 || pub.keys[0] != "tx-1" {
		t.Errorf("expected exactly one event for tx-1, got %v", pub.keys)
	}

	rec = do(mux, http.MethodGet, "/orders/tx-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var order domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if len(order.Lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(order.Lines))
	}

	rec = do(mux, http.MethodGet, "/orders?user_id=u1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = do(mux, http.MethodGet, "/orders/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandler_HandleCreate_Validation(t *testing.T) {
	mux := newTestMux(newFakeRepo(), nil)

	rec := do(mux, http.MethodPost, "/orders", `{"transaction_id":"tx-1","payment_method":"card","lines":[]}`, nil)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "customer.email") {
		t.Errorf("expected nested customer errors, got %s", rec.Body.String())
	}
}

func TestHandler_HandleUpdateStatus(t *testing.T) {
	repo := newFakeRepo()
	mux := newTestMux(repo, nil)
	do(mux, http.MethodPost, "/orders", validOrder, nil)

	rec := do(mux, http.MethodPatch, "/orders/tx-1/status", `{"status":"cancelled"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if repo.orders["tx-1"].Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", repo.orders["tx-1"].Status)
	}

	rec = do(mux, http.MethodPatch, "/orders/tx-1/status", `{"status":"shipped"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 for unknown status, got %d", rec.Code)
	}
}

func TestHandler_PaymentWebhook(t *testing.T) {
	token := map[string]string{"X-Webhook-Token": "s3cret"}

	t.Run("rejects missing token", func(t *testing.T) {
		mux := newTestMux(newFakeRepo(), nil)

		rec := do(mux, http.MethodPost, "/webhooks/payment", `{"transaction_id":"tx-1","status":"paid"}`, nil)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("unknown intent", func(t *testing.T) {
		mux := newTestMux(newFakeRepo(), nil)

		rec := do(mux, http.MethodPost, "/webhooks/payment", `{"transaction_id":"nope","status":"paid"}`, token)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("paid finalizes once even with browser create", func(t *testing.T) {
		repo := newFakeRepo()
		pub := &fakePublisher{}
		mux := newTestMux(repo, pub)

		rec := do(mux, http.MethodPost, "/intents", validOrder, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = do(mux, http.MethodPost, "/webhooks/payment", `{"transaction_id":"tx-1","status":"paid"}`, token)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		do(mux, http.MethodPost, "/webhooks/payment", `{"transaction_id":"tx-1","status":"paid"}`, token)
		rec = do(mux, http.MethodPost, "/orders", validOrder, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected browser create to replay with 200, got %d", rec.Code)
		}

		if len(pub.keys) != 1 {
			t.Errorf("expected one order.created event, got %d", len(pub.keys))
		}
		if repo.intents["tx-1"].Status != domain.IntentStatusFinalized {
			t.Errorf("expected finalized intent, got %s", repo.intents["tx-1"].Status)
		}
	})

	t.Run("failed marks intent failed", func(t *testing.T) {
		repo := newFakeRepo()
		mux := newTestMux(repo, nil)
		do(mux, http.MethodPost, "/intents", validOrder, nil)

		rec := do(mux, http.MethodPost, "/webhooks/payment", `{"transaction_id":"tx-1","status":"failed"}`, token)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if repo.intents["tx-1"].Status != domain.IntentStatusFailed {
			t.Errorf("expected failed intent, got %s", repo.intents["tx-1"].Status)
		}

		rec = do(mux, http.MethodGet, "/intents/tx-1", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}
