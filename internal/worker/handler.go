// Package worker reacts to order.created events after the order is durable.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/email"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
	"github.com/joao-fontenele/storefront-checkout/internal/pricing"
)

type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type OrderCreatedHandler struct {
	carts  CartClearer
	mailer Mailer
	logger *slog.Logger
}

func NewOrderCreatedHandler(carts CartClearer, mailer Mailer, logger *slog.Logger) *OrderCreatedHandler {
	return &OrderCreatedHandler{
		carts:  carts,
		mailer: mailer,
		logger: logger,
	}
}

// Handle clears the buyer's server cart and sends the receipt. Both steps
// are safe to repeat, so a redelivered event is harmless.
func (h *OrderCreatedHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Permanent(fmt.Errorf("unmarshal order created event: %w", err))
	}
	if event.OrderID == "" || event.UserID == "" {
		return messaging.Permanent(errors.New("order created event without order or user id"))
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "user_id", event.UserID, "lines", len(event.Lines))

	if err := h.carts.ClearCart(ctx, event.UserID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "order_id", event.OrderID, "user_id", event.UserID)
		return fmt.Errorf("clear cart: %w", err)
	}

	if event.Email == "" {
		h.logger.Warn("order has no email, skipping receipt", "order_id", event.OrderID)
		return nil
	}

	if err := h.mailer.Send(ctx, receipt(event)); err != nil {
		h.logger.Error("failed to send receipt", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send receipt: %w", err)
	}

	h.logger.Info("order processing complete", "order_id", event.OrderID)
	return nil
}

func receipt(event domain.OrderCreatedEvent) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, thanks for your order %s.\n\n", event.UserName, event.OrderID)
	for _, l := range event.Lines {
		fmt.Fprintf(&b, "%d x %s\n", l.Quantity, l.ProductName)
	}
	fmt.Fprintf(&b, "\nTotal: %.2f\n", pricing.Round2(event.Total))

	return email.Message{
		To:        event.Email,
		Subject:   "Your receipt for order " + event.OrderID,
		Body:      b.String(),
		Reference: "receipt:" + event.OrderID,
	}
}
