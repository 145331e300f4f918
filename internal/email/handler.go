// Package email is a stand-in for a transactional mail provider. It accepts
// receipts and logs them.
package email

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/validation"
)

type Message struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body"`
	// Reference deduplicates resends of the same receipt.
	Reference string `json:"reference,omitempty"`
}

type Handler struct {
	validate *validator.Validate
	logger   *slog.Logger

	mu   sync.Mutex
	sent map[string]struct{}
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		validate: validation.New(),
		logger:   logger,
		sent:     make(map[string]struct{}),
	}
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validation.Struct(h.validate, msg); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Fields})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if msg.Reference != "" && !h.remember(msg.Reference) {
		h.logger.Info("email already sent", "to", msg.To, "reference", msg.Reference)
		h.writeJSON(w, http.StatusOK, sendResponse{Status: "duplicate"})
		return
	}

	h.logger.Info("email sent", "to", msg.To, "subject", msg.Subject, "reference", msg.Reference)
	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

// remember reports whether ref was new.
func (h *Handler) remember(ref string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sent[ref]; ok {
		return false
	}
	h.sent[ref] = struct{}{}
	return true
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
