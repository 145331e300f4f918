// Package checkout bridges the hand-off to an external payment gateway. A
// snapshot of the cart is parked in a Slot before the browser leaves, and on
// return it is turned into order records through a Persister.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/currency"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/pricing"
	"github.com/joao-fontenele/storefront-checkout/internal/validation"
)

var ErrInvalidState = errors.New("checkout: operation not allowed in current state")

type BeginRequest struct {
	Customer      domain.CustomerInfo
	PaymentMethod string
	Items         []domain.CartItem
}

type Redirect struct {
	TransactionID string         `json:"transaction_id"`
	URL           string         `json:"url"`
	Amounts       domain.Amounts `json:"amounts"`
}

// Status is what presentation code needs to render the checkout.
type Status struct {
	State         domain.CheckoutState `json:"state"`
	TransactionID string               `json:"transaction_id,omitempty"`
	CreatedLines  int                  `json:"created_lines"`
	FailedLines   []domain.LineFailure `json:"failed_lines,omitempty"`
	Error         string               `json:"error,omitempty"`
}

type Bridge struct {
	userID    string
	slot      Slot
	persister Persister
	gateway   Gateway
	intents   IntentRegistrar
	policy    pricing.Policy
	currency  currency.Unit
	validate  *validator.Validate
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	busy    bool
	state   domain.CheckoutState
	txID    string
	created int
	failed  []domain.LineFailure
	lastErr error
}

type Option func(*Bridge)

// WithIntents registers every checkout server-side before the redirect so the
// payment webhook can finalize it even if the browser never returns.
func WithIntents(intents IntentRegistrar) Option {
	return func(b *Bridge) { b.intents = intents }
}

func WithPolicy(policy pricing.Policy) Option {
	return func(b *Bridge) { b.policy = policy }
}

func WithCurrency(unit currency.Unit) Option {
	return func(b *Bridge) { b.currency = unit }
}

func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(b *Bridge) { b.newID = newID }
}

func NewBridge(userID string, slot Slot, persister Persister, gateway Gateway, opts ...Option) *Bridge {
	b := &Bridge{
		userID:    userID,
		slot:      slot,
		persister: persister,
		gateway:   gateway,
		currency:  currency.USD,
		validate:  validation.New(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		state:     domain.CheckoutIdle,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("user_id", userID)
	return b
}

// Begin snapshots the cart into a PendingOrder, parks it in the slot and
// returns where to send the browser. A second Begin while an order is parked
// fails with domain.ErrCheckoutInProgress.
func (b *Bridge) Begin(ctx context.Context, req BeginRequest) (Redirect, error) {
	if err := b.acquire(); err != nil {
		return Redirect{}, err
	}
	defer b.release()

	req.Customer.UserID = b.userID
	if err := validation.Struct(b.validate, req.Customer); err != nil {
		return Redirect{}, err
	}
	if req.PaymentMethod == "" {
		return Redirect{}, domain.NewValidationError("payment_method", "is required")
	}
	if len(req.Items) == 0 {
		return Redirect{}, domain.NewValidationError("items", "cart is empty")
	}

	lines := make([]domain.OrderLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = domain.OrderLine{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			ProductSKU:      item.ProductSKU,
			ProductBrand:    item.ProductBrand,
			Quantity:        pricing.NormalizeQuantity(item.Quantity),
			Price:           item.Price,
			DiscountedPrice: item.DiscountedPrice,
			Size:            item.Size,
			Color:           item.Color,
		}
	}

	order := domain.PendingOrder{
		TransactionID: b.newID(),
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
		Lines:         lines,
		Amounts:       pricing.Breakdown(lines, b.policy),
		Currency:      b.currency.String(),
		CreatedAt:     b.now().UTC(),
	}

	redirectURL, err := b.gateway.RedirectURL(order)
	if err != nil {
		return Redirect{}, err
	}

	data, err := Encode(order)
	if err != nil {
		return Redirect{}, fmt.Errorf("encode pending order: %w", err)
	}

	if err := b.slot.Put(ctx, b.userID, data); err != nil {
		return Redirect{}, err
	}

	if b.intents != nil {
		if _, err := b.intents.CreateIntent(ctx, order); err != nil {
			if derr := b.slot.Delete(ctx, b.userID); derr != nil {
				b.logger.Error("failed to release pending order", "transaction_id", order.TransactionID, "error", derr)
			}
			b.logger.Warn("order intent registration failed", "transaction_id", order.TransactionID, "error", err)
			return Redirect{}, err
		}
	}

	b.mu.Lock()
	b.state = domain.CheckoutPending
	b.txID = order.TransactionID
	b.created = 0
	b.failed = nil
	b.lastErr = nil
	b.mu.Unlock()

	b.metrics.recordStarted(ctx)
	b.logger.Info("checkout started",
		"transaction_id", order.TransactionID,
		"lines", len(lines),
		"total", order.Amounts.Total,
	)

	return Redirect{TransactionID: order.TransactionID, URL: redirectURL, Amounts: order.Amounts}, nil
}

// MarkRedirected records that the browser has left for the gateway.
func (b *Bridge) MarkRedirected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != domain.CheckoutPending {
		return fmt.Errorf("%w: mark redirected in %s", ErrInvalidState, b.state)
	}
	b.state = domain.CheckoutAwaitingReturn
	return nil
}

// Reconcile runs when the shopper lands back on the success page. The parked
// order is submitted in full; it is only removed from the slot once every line
// is confirmed, so reloading after a failure resumes instead of losing it.
func (b *Bridge) Reconcile(ctx context.Context) (Status, error) {
	if err := b.acquire(); err != nil {
		return b.Status(), err
	}
	defer b.release()

	prev := b.setState(domain.CheckoutReconciling)

	order, err := b.load(ctx)
	if err != nil {
		var derr *domain.DataIntegrityError
		if errors.As(err, &derr) {
			b.finish(ctx, domain.CheckoutFailed, "", 0, nil, err)
			return b.Status(), err
		}
		b.setState(prev)
		return b.Status(), err
	}

	b.mu.Lock()
	b.txID = order.TransactionID
	b.created = 0
	b.failed = nil
	b.mu.Unlock()

	err = b.persist(ctx, order, nil)
	return b.Status(), err
}

// Retry re-submits only the lines that failed in the last attempt.
func (b *Bridge) Retry(ctx context.Context) (Status, error) {
	if err := b.acquire(); err != nil {
		return b.Status(), err
	}
	defer b.release()

	b.mu.Lock()
	state := b.state
	var indexes []int
	if state == domain.CheckoutPartiallyFailed {
		for _, f := range b.failed {
			indexes = append(indexes, f.Index)
		}
	}
	b.mu.Unlock()

	if !state.IsTerminal() || state == domain.CheckoutCompleted {
		return b.Status(), fmt.Errorf("%w: retry in %s", ErrInvalidState, state)
	}

	b.setState(domain.CheckoutReconciling)
	order, err := b.load(ctx)
	if err != nil {
		b.setState(state)
		return b.Status(), err
	}

	err = b.persist(ctx, order, indexes)
	return b.Status(), err
}

// Cancel abandons a parked order, for when the shopper comes back from the
// gateway without paying and wants to start over.
func (b *Bridge) Cancel(ctx context.Context) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer b.release()

	if err := b.slot.Delete(ctx, b.userID); err != nil {
		return err
	}

	b.mu.Lock()
	txID := b.txID
	b.state = domain.CheckoutIdle
	b.txID = ""
	b.created = 0
	b.failed = nil
	b.lastErr = nil
	b.mu.Unlock()

	b.logger.Info("checkout cancelled", "transaction_id", txID)
	return nil
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Status{
		State:         b.state,
		TransactionID: b.txID,
		CreatedLines:  b.created,
		FailedLines:   slices.Clone(b.failed),
	}
	if b.lastErr != nil {
		st.Error = b.lastErr.Error()
	}
	return st
}

func (b *Bridge) load(ctx context.Context) (domain.PendingOrder, error) {
	data, err := b.slot.Get(ctx, b.userID)
	if err != nil {
		return domain.PendingOrder{}, err
	}

	order, err := Decode(data)
	if err != nil {
		// The payload can never be submitted; keep a copy in the logs for
		// manual reconciliation and free the slot.
		b.logger.Error("discarding malformed pending order", "payload", string(data), "error", err)
		if derr := b.slot.Delete(ctx, b.userID); derr != nil {
			b.logger.Error("failed to discard pending order", "error", derr)
		}
		return domain.PendingOrder{}, err
	}
	return order, nil
}

func (b *Bridge) persist(ctx context.Context, order domain.PendingOrder, indexes []int) error {
	b.setState(domain.CheckoutPersisting)

	created, err := b.persister.Persist(ctx, order, indexes)

	var perr *domain.PartialPersistenceError
	switch {
	case err == nil:
		if derr := b.slot.Delete(ctx, b.userID); derr != nil {
			b.logger.Warn("failed to clear pending order", "transaction_id", order.TransactionID, "error", derr)
		}
		b.finish(ctx, domain.CheckoutCompleted, order.TransactionID, created, nil, nil)
		b.logger.Info("checkout completed", "transaction_id", order.TransactionID, "lines", len(order.Lines))
		return nil

	case errors.As(err, &perr):
		b.finish(ctx, domain.CheckoutPartiallyFailed, order.TransactionID, created, perr.Failed, err)
		b.logger.Error("checkout partially failed",
			"transaction_id", order.TransactionID,
			"created", created,
			"failed", len(perr.Failed),
		)
		return err

	default:
		b.finish(ctx, domain.CheckoutFailed, order.TransactionID, created, nil, err)
		b.logger.Error("checkout persistence failed", "transaction_id", order.TransactionID, "error", err)
		return err
	}
}

func (b *Bridge) finish(ctx context.Context, state domain.CheckoutState, txID string, created int, failed []domain.LineFailure, err error) {
	b.mu.Lock()
	b.state = state
	if txID != "" {
		b.txID = txID
	}
	b.created += created
	b.failed = failed
	b.lastErr = err
	b.mu.Unlock()

	b.metrics.recordOutcome(ctx, state.String(), created)
}

func (b *Bridge) setState(state domain.CheckoutState) domain.CheckoutState {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state = state
	return prev
}

func (b *Bridge) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return domain.ErrSubmitting
	}
	b.busy = true
	return nil
}

func (b *Bridge) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = false
}
