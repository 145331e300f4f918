package carts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/validation"
)

type Repository interface {
	List(ctx context.Context, userID string) ([]domain.CartItem, error)
	Upsert(ctx context.Context, userID string, req AddItem) (domain.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.CartItem, error)
	Remove(ctx context.Context, userID, itemID string) (bool, error)
	Clear(ctx context.Context, userID string) (int64, error)
}

// AddItem is the body of POST /carts/{userId}/items. A missing quantity
// means one.
type AddItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type Handler struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(repo Repository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		validate: validation.New(),
		logger:   logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	items, err := h.repo.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart retrieved", "user_id", userID, "lines", len(items))
	h.writeJSON(w, http.StatusOK, domain.Cart{UserID: userID, Items: items})
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	var req AddItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(h.validate, req); err != nil {
		h.writeValidation(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.repo.Upsert(r.Context(), userID, req)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to add cart item", "error", err, "user_id", userID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "user_id", userID, "item_id", item.ID, "quantity", item.Quantity)
	h.writeJSON(w, http.StatusCreated, item)
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	itemID := r.PathValue("itemId")

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(h.validate, req); err != nil {
		h.writeValidation(w, err)
		return
	}

	item, err := h.repo.UpdateQuantity(r.Context(), userID, itemID, req.Quantity)
	if err != nil {
		h.logger.Error("failed to update cart item", "error", err, "user_id", userID, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if item == nil {
		h.writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	h.logger.Info("cart item updated", "user_id", userID, "item_id", itemID, "quantity", item.Quantity)
	h.writeJSON(w, http.StatusOK, item)
}

// HandleRemoveItem answers 204 whether or not the line existed.
func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	itemID := r.PathValue("itemId")

	removed, err := h.repo.Remove(r.Context(), userID, itemID)
	if err != nil {
		h.logger.Error("failed to remove cart item", "error", err, "user_id", userID, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item removed", "user_id", userID, "item_id", itemID, "existed", removed)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")

	n, err := h.repo.Clear(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to clear cart", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart cleared", "user_id", userID, "lines", n)
	w.WriteHeader(http.StatusNoContent)
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
