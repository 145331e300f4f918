package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// fakeOrderService stands in for the order API. Lines are deduplicated by
// idempotency key the same way the real service does it.
type fakeOrderService struct {
	mu sync.Mutex

	lineCalls   int
	orderCalls  int
	intentCalls int
	keys        []string
	byKey       map[string]domain.OrderLineRecord
	orders      map[string]domain.Order
	intents     map[string]domain.OrderIntent

	failProducts map[string]int // product id -> remaining failures
	orderErr     error
	intentErr    error
}

func newFakeOrderService() *fakeOrderService {
	return &fakeOrderService{
		byKey:        make(map[string]domain.OrderLineRecord),
		orders:       make(map[string]domain.Order),
		intents:      make(map[string]domain.OrderIntent),
		failProducts: make(map[string]int),
	}
}

func (f *fakeOrderService) CreateLine(_ context.Context, line domain.OrderLineRecord, key string) (domain.OrderLineRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lineCalls++
	f.keys = append(f.keys, key)

	if n := f.failProducts[line.ProductID]; n > 0 {
		f.failProducts[line.ProductID] = n - 1
		return domain.OrderLineRecord{}, &domain.NetworkError{Op: "create order line", Status: 500, Err: errors.New("internal server error")}
	}

	if existing, ok := f.byKey[key]; ok {
		return existing, nil
	}
	line.ID = uuid.NewString()
	f.byKey[key] = line
	return line, nil
}

func (f *fakeOrderService) CreateOrder(_ context.Context, order domain.PendingOrder) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.orderCalls++
	if f.orderErr != nil {
		return domain.Order{}, f.orderErr
	}
	if existing, ok := f.orders[order.TransactionID]; ok {
		return existing, nil
	}
	o := domain.Order{ID: order.TransactionID, UserID: order.Customer.UserID, Amounts: order.Amounts, Status: domain.OrderStatusPaid}
	for i := range order.Lines {
		o.Lines = append(o.Lines, LineRecord(order, i))
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeOrderService) CreateIntent(_ context.Context, order domain.PendingOrder) (domain.OrderIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.intentCalls++
	if f.intentErr != nil {
		return domain.OrderIntent{}, f.intentErr
	}
	in := domain.OrderIntent{ID: order.TransactionID, Order: order, Status: domain.IntentStatusPending}
	f.intents[in.ID] = in
	return in, nil
}

func (f *fakeOrderService) linesFor(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, l := range f.byKey {
		if l.OrderID == orderID {
			n++
		}
	}
	return n
}
