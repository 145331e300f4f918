package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/checkout"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// OrderLookup lets the success page report an order that the payment
// webhook finalized after the parked copy was already gone.
type OrderLookup interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
}

type Handler struct {
	sessions *Sessions
	products ProductLookup
	orders   OrderLookup
	logger   *slog.Logger
}

// NewHandler wires the storefront routes. orders may be nil.
func NewHandler(sessions *Sessions, products ProductLookup, orders OrderLookup, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		products: products,
		orders:   orders,
		logger:   logger,
	}
}

// Register mounts every route on mux, wrapping each handler with wrap.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	if wrap == nil {
		wrap = func(f http.HandlerFunc) http.HandlerFunc { return f }
	}
	mux.HandleFunc("GET /cart", wrap(h.HandleGetCart))
	mux.HandleFunc("POST /cart/items", wrap(h.HandleAddToCart))
	mux.HandleFunc("PATCH /cart/items/{id}", wrap(h.HandleUpdateQuantity))
	mux.HandleFunc("DELETE /cart/items/{id}", wrap(h.HandleRemoveFromCart))
	mux.HandleFunc("DELETE /cart", wrap(h.HandleClearCart))
	mux.HandleFunc("GET /wishlist", wrap(h.HandleGetWishlist))
	mux.HandleFunc("POST /wishlist/items", wrap(h.HandleAddToWishlist))
	mux.HandleFunc("DELETE /wishlist/items/{id}", wrap(h.HandleRemoveFromWishlist))
	mux.HandleFunc("DELETE /wishlist", wrap(h.HandleClearWishlist))
	mux.HandleFunc("GET /checkout", wrap(h.HandleCheckoutStatus))
	mux.HandleFunc("POST /checkout", wrap(h.HandleBeginCheckout))
	mux.HandleFunc("DELETE /checkout", wrap(h.HandleCancelCheckout))
	mux.HandleFunc("GET /checkout/success", wrap(h.HandleCheckoutSuccess))
	mux.HandleFunc("POST /checkout/retry", wrap(h.HandleRetryCheckout))
}

// session resolves the shopper and makes sure the cart was loaded once.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return nil, false
	}

	sess := h.sessions.Get(userID)
	if err := sess.load(r.Context()); err != nil {
		h.logger.Error("failed to load cart", "error", err, "user_id", userID)
		h.writeFailure(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

type addToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

func (h *Handler) HandleAddToCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeFailure(w, domain.NewValidationError("product_id", "is required"))
		return
	}

	product, err := h.products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if _, err := sess.Cart.AddToCart(r.Context(), product, cart.AddOptions{
		Quantity: req.Quantity,
		Size:     req.Size,
		Color:    req.Color,
	}); err != nil {
		h.logger.Warn("add to cart failed", "error", err, "user_id", sess.UserID, "product_id", req.ProductID)
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, sess.Cart.Snapshot())
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := sess.Cart.UpdateQuantity(r.Context(), r.PathValue("id"), req.Quantity); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if _, err := sess.Cart.RemoveFromCart(r.Context(), r.PathValue("id")); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := sess.Cart.Clear(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetWishlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sess.Wishlist.Snapshot())
}

type addToWishlistRequest struct {
	ProductID string `json:"product_id"`
}

// HandleAddToWishlist answers 201 for a new entry and 200 when the product
// was already saved.
func (h *Handler) HandleAddToWishlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addToWishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeFailure(w, domain.NewValidationError("product_id", "is required"))
		return
	}

	product, err := h.products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	status := http.StatusOK
	if sess.Wishlist.Add(domain.WishlistItemFromProduct(product)) {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, sess.Wishlist.Snapshot())
}

func (h *Handler) HandleRemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	sess.Wishlist.Remove(r.PathValue("id"))
	h.writeJSON(w, http.StatusOK, sess.Wishlist.Snapshot())
}

func (h *Handler) HandleClearWishlist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	sess.Wishlist.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sess.Checkout.Status())
}

type beginCheckoutRequest struct {
	Customer      domain.CustomerInfo `json:"customer"`
	PaymentMethod string              `json:"payment_method"`
}

// HandleBeginCheckout parks the cart and sends the browser to the payment
// gateway with a 303.
func (h *Handler) HandleBeginCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req beginCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	redirect, err := sess.Checkout.Begin(r.Context(), checkout.BeginRequest{
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
		Items:         sess.Cart.Items(),
	})
	if err != nil {
		h.logger.Warn("checkout could not start", "error", err, "user_id", sess.UserID)
		h.writeFailure(w, err)
		return
	}

	if err := sess.Checkout.MarkRedirected(); err != nil {
		h.logger.Error("failed to mark checkout redirected", "error", err, "transaction_id", redirect.TransactionID)
	}

	w.Header().Set("Location", redirect.URL)
	h.writeJSON(w, http.StatusSeeOther, redirect)
}

// HandleCheckoutSuccess is the gateway's return URL. It turns the parked
// order into order records. Reloading after completion reports the same
// result without submitting anything again.
func (h *Handler) HandleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	before := sess.Checkout.Status()
	status, err := sess.Checkout.Reconcile(r.Context())
	if errors.Is(err, domain.ErrNoPendingOrder) {
		h.reportWithoutPending(w, r, sess, before)
		return
	}
	h.writeCheckout(r.Context(), w, sess, status, err)
}

func (h *Handler) reportWithoutPending(w http.ResponseWriter, r *http.Request, sess *Session, before checkout.Status) {
	if before.State == domain.CheckoutCompleted {
		h.writeJSON(w, http.StatusOK, before)
		return
	}

	txID := r.URL.Query().Get("transaction_id")
	if txID == "" {
		txID = before.TransactionID
	}
	if txID != "" && h.orders != nil {
		order, err := h.orders.GetOrder(r.Context(), txID)
		if err == nil && order.UserID != sess.UserID {
			h.logger.Warn("success page for foreign order", "transaction_id", txID, "user_id", sess.UserID)
			err = domain.ErrNotFound
		}
		if err == nil {
			h.logger.Info("order already finalized", "transaction_id", order.ID, "user_id", sess.UserID)
			// Only the checkout this session started owns the current cart; an
			// older success URL must not empty a cart filled since.
			if order.ID == before.TransactionID {
				h.clearCart(r.Context(), sess)
			}
			h.writeJSON(w, http.StatusOK, checkout.Status{
				State:         domain.CheckoutCompleted,
				TransactionID: order.ID,
				CreatedLines:  len(order.Lines),
			})
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.writeFailure(w, err)
			return
		}
	}

	h.writeError(w, http.StatusNotFound, "no pending order")
}

func (h *Handler) HandleRetryCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	status, err := sess.Checkout.Retry(r.Context())
	h.writeCheckout(r.Context(), w, sess, status, err)
}

func (h *Handler) HandleCancelCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := sess.Checkout.Cancel(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeCheckout renders the outcome of a reconcile or retry. A partial
// failure is a 207 carrying the transaction id and the failed lines.
func (h *Handler) writeCheckout(ctx context.Context, w http.ResponseWriter, sess *Session, status checkout.Status, err error) {
	var perr *domain.PartialPersistenceError
	switch {
	case err == nil:
		h.clearCart(ctx, sess)
		h.writeJSON(w, http.StatusOK, status)
	case errors.As(err, &perr):
		h.writeJSON(w, http.StatusMultiStatus, status)
	default:
		h.writeFailure(w, err)
	}
}

// clearCart empties the purchased cart. The worker does the same on the
// server when order.created arrives, so a failure here is only logged.
func (h *Handler) clearCart(ctx context.Context, sess *Session) {
	if err := sess.Cart.Clear(ctx); err != nil {
		h.logger.Warn("failed to clear cart after checkout", "error", err, "user_id", sess.UserID)
	}
}

// writeFailure maps the error taxonomy onto status codes.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		derr *domain.DataIntegrityError
		nerr *domain.NetworkError
	)
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNoPendingOrder):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSubmitting),
		errors.Is(err, domain.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrInvalidState):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &derr):
		h.logger.Error("data integrity failure", "error", err)
		h.writeError(w, http.StatusInternalServerError, derr.Reason)
	case errors.As(err, &nerr):
		h.writeError(w, http.StatusBadGateway, "upstream service unavailable")
	case errors.Is(err, domain.ErrStoreClosed):
		h.writeError(w, http.StatusServiceUnavailable, "session expired, retry")
	default:
		h.logger.Error("unexpected error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
