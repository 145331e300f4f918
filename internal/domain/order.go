package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderLine is the snapshot of one cart line taken when the shopper proceeds
// to payment.
type OrderLine struct {
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	ProductSKU      string  `json:"product_sku"`
	ProductBrand    string  `json:"product_brand"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	DiscountedPrice float64 `json:"discounted_price"`
	Size            string  `json:"size"`
	Color           string  `json:"color"`
}

// OrderLineRecord is a persisted order line. OrderID groups every line that was
// created from one checkout.
type OrderLineRecord struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"order_id"`
	UserName        string    `json:"user_name"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	PaymentMethod   string    `json:"payment_method"`
	ProductSKU      string    `json:"product_sku"`
	ProductBrand    string    `json:"product_brand"`
	Quantity        int       `json:"quantity"`
	Price           float64   `json:"price"`
	DiscountedPrice float64   `json:"discounted_price"`
	Size            string    `json:"size"`
	Color           string    `json:"color"`
	CreatedAt       time.Time `json:"created_at"`
}

type Order struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	UserName      string            `json:"user_name"`
	Email         string            `json:"email"`
	PaymentMethod string            `json:"payment_method"`
	Amounts       Amounts           `json:"amounts"`
	Status        OrderStatus       `json:"status"`
	Lines         []OrderLineRecord `json:"lines"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Amounts is the price breakdown of a checkout. Values are kept unrounded.
type Amounts struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}
