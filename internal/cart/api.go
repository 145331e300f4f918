package cart

import (
	"context"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// API is the server-side cart resource the store mirrors.
type API interface {
	GetCart(ctx context.Context, userID string) ([]domain.CartItem, error)
	AddItem(ctx context.Context, userID string, req AddItemRequest) (domain.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID string) error
	ClearCart(ctx context.Context, userID string) error
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type AddOptions struct {
	Quantity int
	Size     string
	Color    string
}
