package orders

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/validation"
)

type Repository interface {
	CreateLine(ctx context.Context, line domain.OrderLineRecord, idempotencyKey string) (domain.OrderLineRecord, bool, error)
	LinesByOrder(ctx context.Context, orderID string) ([]domain.OrderLineRecord, error)
	CreateOrder(ctx context.Context, pending domain.PendingOrder) (*domain.Order, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	CreateIntent(ctx context.Context, pending domain.PendingOrder) (*domain.OrderIntent, bool, error)
	GetIntent(ctx context.Context, id string) (*domain.OrderIntent, error)
	FinalizeIntent(ctx context.Context, id string) (*domain.Order, bool, error)
	FailIntent(ctx context.Context, id string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	repo         Repository
	producer     Publisher
	webhookToken string
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewHandler wires the order API. producer may be nil, in which case no
// order.created events are published.
func NewHandler(repo Repository, producer Publisher, webhookToken string, logger *slog.Logger) *Handler {
	return &Handler{
		repo:         repo,
		producer:     producer,
		webhookToken: webhookToken,
		validate:     validation.New(),
		logger:       logger,
	}
}

type createLineRequest struct {
	OrderID         string  `json:"order_id" validate:"required"`
	UserName        string  `json:"user_name" validate:"required"`
	ProductID       string  `json:"product_id" validate:"required"`
	ProductName     string  `json:"product_name" validate:"required"`
	PaymentMethod   string  `json:"payment_method" validate:"required"`
	ProductSKU      string  `json:"product_sku"`
	ProductBrand    string  `json:"product_brand"`
	Quantity        int     `json:"quantity" validate:"min=1"`
	Price           float64 `json:"price" validate:"gte=0"`
	DiscountedPrice float64 `json:"discounted_price" validate:"gte=0"`
	Size            string  `json:"size"`
	Color           string  `json:"color"`
}

func (h *Handler) HandleCreateLine(w http.ResponseWriter, r *http.Request) {
	var req createLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validation.Struct(h.validate, req); err != nil {
		h.writeValidation(w, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = uuid.New().String()
	}

	line, created, err := h.repo.CreateLine(r.Context(), domain.OrderLineRecord{
		OrderID:         req.OrderID,
		UserName:        req.UserName,
		ProductID:       req.ProductID,
		ProductName:     req.ProductName,
		PaymentMethod:   req.PaymentMethod,
		ProductSKU:      req.ProductSKU,
		ProductBrand:    req.ProductBrand,
		Quantity:        req.Quantity,
		Price:           req.Price,
		DiscountedPrice: req.DiscountedPrice,
		Size:            req.Size,
		Color:           req.Color,
	}, key)
	if err != nil {
		h.logger.Error("failed to create order line", "error", err, "order_id", req.OrderID, "idempotency_key", key)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !created {
		h.logger.Info("order line replayed", "line_id", line.ID, "order_id", line.OrderID, "idempotency_key", key)
		h.writeJSON(w, http.StatusOK, line)
		return
	}

	h.logger.Info("order line created", "line_id", line.ID, "order_id", line.OrderID, "product_id", line.ProductID)
	h.writeJSON(w, http.StatusCreated, line)
}

type pendingOrderRequest struct {
	TransactionID string              `json:"transaction_id" validate:"required"`
	Customer      domain.CustomerInfo `json:"customer"`
	PaymentMethod string              `json:"payment_method" validate:"required"`
	Lines         []orderLineRequest  `json:"lines" validate:"required,min=1,dive"`
	Amounts       domain.Amounts      `json:"amounts"`
	Currency      string              `json:"currency" validate:"omitempty,len=3"`
	CreatedAt     time.Time           `json:"created_at"`
}

type orderLineRequest struct {
	ProductID       string  `json:"product_id" validate:"required"`
	ProductName     string  `json:"product_name" validate:"required"`
	ProductSKU      string  `json:"product_sku"`
	ProductBrand    string  `json:"product_brand"`
	Quantity        int     `json:"quantity" validate:"min=1"`
	Price           float64 `json:"price" validate:"gte=0"`
	DiscountedPrice float64 `json:"discounted_price" validate:"gte=0"`
	Size            string  `json:"size"`
	Color           string  `json:"color"`
}

func (req pendingOrderRequest) toDomain() domain.PendingOrder {
	lines := make([]domain.OrderLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = domain.OrderLine(l)
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	return domain.PendingOrder{
		TransactionID: req.TransactionID,
		Customer:      req.Customer,
		PaymentMethod: req.PaymentMethod,
		Lines:         lines,
		Amounts:       req.Amounts,
		Currency:      currency,
		CreatedAt:     req.CreatedAt,
	}
}

func (h *Handler) decodePendingOrder(w http.ResponseWriter, r *http.Request) (domain.PendingOrder, bool) {
	var req pendingOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return domain.PendingOrder{}, false
	}
	if err := validation.Struct(h.validate, req); err != nil {
		h.writeValidation(w, err)
		return domain.PendingOrder{}, false
	}
	return req.toDomain(), true
}

// HandleCreate stores a whole order with all of its lines. The transaction id
// doubles as the order id; posting the same one again returns 200 with the
// stored order.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	pending, ok := h.decodePendingOrder(w, r)
	if !ok {
		return
	}

	order, created, err := h.repo.CreateOrder(r.Context(), pending)
	if err != nil {
		h.logger.Error("failed to create order", "error", err, "transaction_id", pending.TransactionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !created {
		h.logger.Info("order replayed", "order_id", order.ID)
		h.writeJSON(w, http.StatusOK, order)
		return
	}

	h.publishCreated(r.Context(), order)
	h.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "lines", len(order.Lines))
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

// HandleListLines returns every line grouped under the order id, whether or
// not an order header exists for it.
func (h *Handler) HandleListLines(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	lines, err := h.repo.LinesByOrder(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list order lines", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order lines listed", "order_id", id, "count", len(lines))
	h.writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	orders, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("orders listed", "user_id", userID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=pending paid cancelled"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(h.validate, req); err != nil {
		h.writeValidation(w, err)
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.logger.Error("failed to update order status", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCreateIntent(w http.ResponseWriter, r *http.Request) {
	pending, ok := h.decodePendingOrder(w, r)
	if !ok {
		return
	}

	intent, created, err := h.repo.CreateIntent(r.Context(), pending)
	if err != nil {
		h.logger.Error("failed to create order intent", "error", err, "transaction_id", pending.TransactionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("order intent created", "transaction_id", intent.ID, "user_id", pending.Customer.UserID)
	}
	h.writeJSON(w, status, intent)
}

func (h *Handler) HandleGetIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	intent, err := h.repo.GetIntent(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order intent", "error", err, "transaction_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if intent == nil {
		h.writeError(w, http.StatusNotFound, "order intent not found")
		return
	}

	h.writeJSON(w, http.StatusOK, intent)
}

type paymentWebhookRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=paid failed"`
}

// HandlePaymentWebhook is called by the payment provider. A paid notification
// finalizes the intent into an order even if the shopper never came back to
// the storefront.
func (h *Handler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Webhook-Token")
	if h.webhookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookToken)) != 1 {
		h.writeError(w, http.StatusUnauthorized, "invalid webhook token")
		return
	}

	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(h.validate, req); err != nil {
		h.writeValidation(w, err)
		return
	}

	if req.Status == "failed" {
		changed, err := h.repo.FailIntent(r.Context(), req.TransactionID)
		if err != nil {
			h.logger.Error("failed to mark intent failed", "error", err, "transaction_id", req.TransactionID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		h.logger.Info("payment failed", "transaction_id", req.TransactionID, "changed", changed)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.IntentStatusFailed)})
		return
	}

	order, created, err := h.repo.FinalizeIntent(r.Context(), req.TransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "order intent not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to finalize intent", "error", err, "transaction_id", req.TransactionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if created {
		h.publishCreated(r.Context(), order)
		h.logger.Info("order finalized from webhook", "order_id", order.ID)
	} else {
		h.logger.Info("payment webhook replayed", "transaction_id", req.TransactionID)
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) publishCreated(ctx context.Context, order *domain.Order) {
	if h.producer == nil || order == nil {
		return
	}

	event := domain.OrderCreatedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		UserName:  order.UserName,
		Email:     order.Email,
		Lines:     order.Lines,
		Total:     order.Amounts.Total,
		Timestamp: order.CreatedAt,
	}
	if err := h.producer.Publish(ctx, order.ID, event); err != nil {
		h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Fields})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
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
