package domain

import "time"

type WishlistItem struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Image     string    `json:"image,omitempty"`
	Rating    float64   `json:"rating"`
	InStock   *bool     `json:"in_stock,omitempty"`
	AddedDate time.Time `json:"added_date"`
}

// WishlistItemFromProduct snapshots the product as it looks right now.
func WishlistItemFromProduct(p Product) WishlistItem {
	inStock := p.InStock()
	return WishlistItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image(),
		Rating:    p.Rating,
		InStock:   &inStock,
	}
}
