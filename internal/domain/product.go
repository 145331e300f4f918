package domain

// Product is the catalog view of a sellable item. Carts and wishlists keep
// copies of these fields taken at the time the shopper acted on them.
type Product struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	SKU             string   `json:"sku"`
	Brand           string   `json:"brand"`
	Price           float64  `json:"price"`
	DiscountedPrice float64  `json:"discounted_price,omitempty"`
	Images          []string `json:"images,omitempty"`
	Rating          float64  `json:"rating"`
	Stock           int      `json:"stock"`
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
