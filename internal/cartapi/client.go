// Package cartapi is the storefront's client for the cart service and its
// product catalog.
package cartapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joao-fontenele/storefront-checkout/internal/apiclient"
	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type Client struct {
	api *apiclient.Client
}

func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func cartPath(userID string) string {
	return "/carts/" + url.PathEscape(userID)
}

func itemPath(userID, itemID string) string {
	return cartPath(userID) + "/items/" + url.PathEscape(itemID)
}

func (c *Client) GetCart(ctx context.Context, userID string) ([]domain.CartItem, error) {
	var out domain.Cart
	if _, err := c.api.Do(ctx, "get cart", http.MethodGet, cartPath(userID), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) AddItem(ctx context.Context, userID string, req cart.AddItemRequest) (domain.CartItem, error) {
	var out domain.CartItem
	_, err := c.api.Do(ctx, "add cart item", http.MethodPost, cartPath(userID)+"/items", req, &out)
	return out, err
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (c *Client) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.CartItem, error) {
	var out domain.CartItem
	_, err := c.api.Do(ctx, "update cart item", http.MethodPatch, itemPath(userID, itemID), updateQuantityRequest{Quantity: quantity}, &out)
	return out, err
}

func (c *Client) RemoveItem(ctx context.Context, userID, itemID string) error {
	_, err := c.api.Do(ctx, "remove cart item", http.MethodDelete, itemPath(userID, itemID), nil, nil)
	return err
}

func (c *Client) ClearCart(ctx context.Context, userID string) error {
	_, err := c.api.Do(ctx, "clear cart", http.MethodDelete, cartPath(userID), nil, nil)
	return err
}

func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	_, err := c.api.Do(ctx, "get product", http.MethodGet, "/products/"+url.PathEscape(id), nil, &out)
	return out, err
}

var _ cart.API = (*Client)(nil)
