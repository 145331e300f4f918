package email

import (
	"context"
	"net/http"

	"github.com/joao-fontenele/storefront-checkout/internal/apiclient"
)

type Client struct {
	api *apiclient.Client
}

func NewClient(api *apiclient.Client) *Client {
	return &Client{api: api}
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	_, err := c.api.Do(ctx, "send email", http.MethodPost, "/send", msg, nil)
	return err
}
