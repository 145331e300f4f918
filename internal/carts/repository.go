// Package carts is the cart service: server truth for cart lines and the
// ids the storefront merges by.
package carts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joao-fontenele/storefront-checkout/internal/catalog"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type CartRepository struct {
	q    catalog.DBTX
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{q: pool, pool: pool}
}

// NewCartRepositoryWithTx binds the repository to a caller owned transaction.
func NewCartRepositoryWithTx(tx pgx.Tx) *CartRepository {
	return &CartRepository{q: tx}
}

const itemSelect = `
	SELECT ci.id, ci.product_id, p.name, p.sku, p.brand, ci.quantity, p.price, p.discounted_price,
		ci.size, ci.color, p.images, ci.created_at, ci.updated_at
	FROM storefront.cart_items ci
	JOIN storefront.products p ON p.id = ci.product_id
`

func (r *CartRepository) List(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is empty")
	}

	rows, err := r.q.Query(ctx, itemSelect+` WHERE ci.user_id = $1 ORDER BY ci.created_at, ci.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	return items, nil
}

// Upsert adds quantity to the line for (product, size, color), creating it
// with a fresh id when it does not exist yet. Returns domain.ErrNotFound for
// an unknown product.
func (r *CartRepository) Upsert(ctx context.Context, userID string, req AddItem) (domain.CartItem, error) {
	if userID == "" {
		return domain.CartItem{}, fmt.Errorf("userID is empty")
	}

	return withTx(ctx, r.pool, r.q, func(q catalog.DBTX) (domain.CartItem, error) {
		product, err := catalog.NewProductRepository(q).FindByID(ctx, req.ProductID)
		if err != nil {
			return domain.CartItem{}, fmt.Errorf("find product: %w", err)
		}
		if product == nil {
			return domain.CartItem{}, domain.ErrNotFound
		}

		var id uuid.UUID
		err = q.QueryRow(ctx, `
			INSERT INTO storefront.cart_items (id, user_id, product_id, quantity, size, color)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, product_id, size, color)
			DO UPDATE SET quantity = storefront.cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			RETURNING id
		`, uuid.New(), userID, req.ProductID, req.Quantity, req.Size, req.Color).Scan(&id)
		if err != nil {
			return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
		}

		return scanItem(q.QueryRow(ctx, itemSelect+` WHERE ci.id = $1`, id))
	})
}

// UpdateQuantity returns nil, nil when the line does not belong to the user.
func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.CartItem, error) {
	id, err := uuid.Parse(itemID)
	if err != nil {
		return nil, nil
	}

	return withTx(ctx, r.pool, r.q, func(q catalog.DBTX) (*domain.CartItem, error) {
		tag, err := q.Exec(ctx, `
			UPDATE storefront.cart_items
			SET quantity = $3, updated_at = NOW()
			WHERE id = $1 AND user_id = $2
		`, id, userID, quantity)
		if err != nil {
			return nil, fmt.Errorf("update cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, nil
		}

		item, err := scanItem(q.QueryRow(ctx, itemSelect+` WHERE ci.id = $1`, id))
		if err != nil {
			return nil, err
		}
		return &item, nil
	})
}

func (r *CartRepository) Remove(ctx context.Context, userID, itemID string) (bool, error) {
	id, err := uuid.Parse(itemID)
	if err != nil {
		return false, nil
	}

	tag, err := r.q.Exec(ctx, `DELETE FROM storefront.cart_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete cart item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM storefront.cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanItem(row pgx.Row) (domain.CartItem, error) {
	var (
		item domain.CartItem
		id   uuid.UUID
	)
	err := row.Scan(&id, &item.ProductID, &item.ProductName, &item.ProductSKU, &item.ProductBrand,
		&item.Quantity, &item.Price, &item.DiscountedPrice, &item.Size, &item.Color, &item.Images,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return item, domain.ErrNotFound
	}
	if err != nil {
		return item, fmt.Errorf("scan cart item: %w", err)
	}
	item.ID = id.String()
	return item, nil
}
