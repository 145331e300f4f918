package pricing

import "github.com/joao-fontenele/storefront-checkout/internal/domain"

// Policy describes how shipping and tax are added on top of the subtotal.
type Policy struct {
	ShippingFlat     float64
	FreeShippingOver float64
	TaxRate          float64
}

// Breakdown computes the checkout amounts. No rounding is applied here.
func Breakdown(lines []domain.OrderLine, policy Policy) domain.Amounts {
	subtotal := LinesSubtotal(lines)

	shipping := policy.ShippingFlat
	if subtotal == 0 || (policy.FreeShippingOver > 0 && subtotal >= policy.FreeShippingOver) {
		shipping = 0
	}

	tax := subtotal * policy.TaxRate

	return domain.Amounts{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}
}
