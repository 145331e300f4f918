package checkout

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/pricing"
)

func Encode(order domain.PendingOrder) ([]byte, error) {
	return json.Marshal(order)
}

// wire mirrors domain.PendingOrder with loosely typed numbers so payloads
// written by older clients, with string or missing amounts, still decode.
type wireOrder struct {
	TransactionID string              `json:"transaction_id"`
	Customer      domain.CustomerInfo `json:"customer"`
	PaymentMethod string              `json:"payment_method"`
	Lines         []wireLine          `json:"lines"`
	Amounts       wireAmounts         `json:"amounts"`
	Currency      string              `json:"currency"`
	CreatedAt     time.Time           `json:"created_at"`
}

type wireLine struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	ProductSKU      string `json:"product_sku"`
	ProductBrand    string `json:"product_brand"`
	Quantity        any    `json:"quantity"`
	Price           any    `json:"price"`
	DiscountedPrice any    `json:"discounted_price"`
	Size            string `json:"size"`
	Color           string `json:"color"`
}

type wireAmounts struct {
	Subtotal any `json:"subtotal"`
	Shipping any `json:"shipping"`
	Tax      any `json:"tax"`
	Total    any `json:"total"`
}

// Decode parses a slot payload. Amounts default to 0 and quantities to 1 when
// missing or not numeric.
func Decode(data []byte) (domain.PendingOrder, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var w wireOrder
	if err := dec.Decode(&w); err != nil {
		return domain.PendingOrder{}, &domain.DataIntegrityError{Reason: "malformed pending order", Err: err}
	}
	if w.TransactionID == "" {
		return domain.PendingOrder{}, &domain.DataIntegrityError{Reason: "pending order has no transaction id"}
	}
	if len(w.Lines) == 0 {
		return domain.PendingOrder{}, &domain.DataIntegrityError{Reason: "pending order has no lines"}
	}

	order := domain.PendingOrder{
		TransactionID: w.TransactionID,
		Customer:      w.Customer,
		PaymentMethod: w.PaymentMethod,
		Lines:         make([]domain.OrderLine, len(w.Lines)),
		Amounts: domain.Amounts{
			Subtotal: pricing.NormalizeAmount(w.Amounts.Subtotal),
			Shipping: pricing.NormalizeAmount(w.Amounts.Shipping),
			Tax:      pricing.NormalizeAmount(w.Amounts.Tax),
			Total:    pricing.NormalizeAmount(w.Amounts.Total),
		},
		Currency:  w.Currency,
		CreatedAt: w.CreatedAt,
	}

	for i, l := range w.Lines {
		order.Lines[i] = domain.OrderLine{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			ProductSKU:      l.ProductSKU,
			ProductBrand:    l.ProductBrand,
			Quantity:        pricing.NormalizeQuantity(l.Quantity),
			Price:           pricing.NormalizeAmount(l.Price),
			DiscountedPrice: pricing.NormalizeAmount(l.DiscountedPrice),
			Size:            l.Size,
			Color:           l.Color,
		}
	}

	return order, nil
}
