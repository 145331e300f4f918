package gateway

import (
	"context"
	"net/http"
)

// forwardedHeaders are copied from the inbound request. Everything else,
// cookies included, stays at the edge.
var forwardedHeaders = []string{
	"Accept",
	"Content-Type",
	"Idempotency-Key",
	"X-User-ID",
	"X-Webhook-Token",
}

type ServiceProxy struct {
	baseURL string
	client  *http.Client
}

// NewServiceProxy never follows redirects so a 303 from upstream reaches the
// browser unchanged.
func NewServiceProxy(baseURL string, client *http.Client) *ServiceProxy {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &ServiceProxy{
		baseURL: baseURL,
		client:  &c,
	}
}

func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}

	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	return p.client.Do(req)
}
