package domain

import "time"

// CartItem is one product configuration in a cart. ID is issued by the cart
// service and stays stable for the (product, size, color) combination.
type CartItem struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	ProductSKU      string    `json:"product_sku"`
	ProductBrand    string    `json:"product_brand"`
	Quantity        int       `json:"quantity"`
	Price           float64   `json:"price"`
	DiscountedPrice float64   `json:"discounted_price,omitempty"`
	Size            string    `json:"size,omitempty"`
	Color           string    `json:"color,omitempty"`
	Images          []string  `json:"images,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SameConfiguration reports whether both lines describe the same product variant.
func (i CartItem) SameConfiguration(productID, size, color string) bool {
	return i.ProductID == productID && i.Size == size && i.Color == color
}

type Cart struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}
