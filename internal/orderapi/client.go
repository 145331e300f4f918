// Package orderapi is the storefront's client for the order service.
package orderapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joao-fontenele/storefront-checkout/internal/apiclient"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type Client struct {
	api *apiclient.Client
}

func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) CreateLine(ctx context.Context, line domain.OrderLineRecord, idempotencyKey string) (domain.OrderLineRecord, error) {
	var out domain.OrderLineRecord
	_, err := c.api.Do(ctx, "create order line", http.MethodPost, "/order-lines", line, &out,
		apiclient.WithHeader("Idempotency-Key", idempotencyKey))
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, order domain.PendingOrder) (domain.Order, error) {
	var out domain.Order
	_, err := c.api.Do(ctx, "create order", http.MethodPost, "/orders", order, &out,
		apiclient.WithHeader("Idempotency-Key", order.TransactionID))
	return out, err
}

func (c *Client) CreateIntent(ctx context.Context, order domain.PendingOrder) (domain.OrderIntent, error) {
	var out domain.OrderIntent
	_, err := c.api.Do(ctx, "create order intent", http.MethodPost, "/intents", order, &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var out domain.Order
	_, err := c.api.Do(ctx, "get order", http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out)
	return out, err
}
