package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type LineCreator interface {
	CreateLine(ctx context.Context, line domain.OrderLineRecord, idempotencyKey string) (domain.OrderLineRecord, error)
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, order domain.PendingOrder) (domain.Order, error)
}

type IntentRegistrar interface {
	CreateIntent(ctx context.Context, order domain.PendingOrder) (domain.OrderIntent, error)
}

// Persister turns a reconciled PendingOrder into server-side order records.
// indexes selects which lines to submit; nil means all of them.
type Persister interface {
	Persist(ctx context.Context, order domain.PendingOrder, indexes []int) (created int, err error)
}

// IdempotencyKey identifies one line of one checkout. Replaying the same key
// returns the line that was already created.
func IdempotencyKey(transactionID string, index int) string {
	return fmt.Sprintf("%s:%d", transactionID, index)
}

// LineRecord builds the create-line payload for the line at index i.
func LineRecord(order domain.PendingOrder, i int) domain.OrderLineRecord {
	l := order.Lines[i]
	return domain.OrderLineRecord{
		OrderID:         order.TransactionID,
		UserName:        order.Customer.Name,
		ProductID:       l.ProductID,
		ProductName:     l.ProductName,
		PaymentMethod:   order.PaymentMethod,
		ProductSKU:      l.ProductSKU,
		ProductBrand:    l.ProductBrand,
		Quantity:        l.Quantity,
		Price:           l.Price,
		DiscountedPrice: l.DiscountedPrice,
		Size:            l.Size,
		Color:           l.Color,
	}
}

// FanOut issues one create-line request per line, concurrently and in no
// particular order. Lines that were created stay created when others fail.
type FanOut struct {
	lines  LineCreator
	limit  int
	logger *slog.Logger
}

// NewFanOut limits in-flight requests to limit; zero or less means unbounded.
func NewFanOut(lines LineCreator, limit int, logger *slog.Logger) *FanOut {
	return &FanOut{lines: lines, limit: limit, logger: logger}
}

func (f *FanOut) Persist(ctx context.Context, order domain.PendingOrder, indexes []int) (int, error) {
	if indexes == nil {
		indexes = make([]int, len(order.Lines))
		for i := range indexes {
			indexes[i] = i
		}
	}
	for _, idx := range indexes {
		if idx < 0 || idx >= len(order.Lines) {
			return 0, &domain.DataIntegrityError{Reason: fmt.Sprintf("line index %d out of range", idx)}
		}
	}

	errs := make([]error, len(indexes))

	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for k, idx := range indexes {
		g.Go(func() error {
			_, err := f.lines.CreateLine(ctx, LineRecord(order, idx), IdempotencyKey(order.TransactionID, idx))
			errs[k] = err
			return nil
		})
	}
	_ = g.Wait()

	var (
		created int
		failed  []domain.LineFailure
	)
	for k, err := range errs {
		idx := indexes[k]
		if err == nil {
			created++
			continue
		}
		f.logger.Error("order line create failed",
			"transaction_id", order.TransactionID,
			"line_index", idx,
			"product_id", order.Lines[idx].ProductID,
			"error", err,
		)
		failed = append(failed, domain.LineFailure{
			Index:     idx,
			ProductID: order.Lines[idx].ProductID,
			Err:       err,
			Message:   err.Error(),
		})
	}

	if len(failed) > 0 {
		return created, &domain.PartialPersistenceError{
			TransactionID: order.TransactionID,
			Created:       created,
			Failed:        failed,
		}
	}
	return created, nil
}

// Atomic creates the whole order, all lines at once, in a single call keyed by
// the transaction id. Either every line exists afterwards or none does.
type Atomic struct {
	orders OrderCreator
}

func NewAtomic(orders OrderCreator) *Atomic {
	return &Atomic{orders: orders}
}

func (a *Atomic) Persist(ctx context.Context, order domain.PendingOrder, _ []int) (int, error) {
	created, err := a.orders.CreateOrder(ctx, order)
	if err != nil {
		return 0, err
	}
	if created.ID != "" && created.ID != order.TransactionID {
		return 0, &domain.DataIntegrityError{Reason: fmt.Sprintf("order service returned order %s for transaction %s", created.ID, order.TransactionID)}
	}
	return len(order.Lines), nil
}

var ErrUnknownPersister = errors.New("unknown persister")

// PersisterKind selects a Persister by configuration name.
type PersisterKind string

const (
	PersisterAtomic PersisterKind = "atomic"
	PersisterFanOut PersisterKind = "fanout"
)

func ParsePersisterKind(s string) (PersisterKind, error) {
	switch PersisterKind(s) {
	case "", PersisterAtomic:
		return PersisterAtomic, nil
	case PersisterFanOut:
		return PersisterFanOut, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPersister, s)
	}
}
