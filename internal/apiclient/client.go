// Package apiclient is the JSON-over-HTTP client shared by the cart and order
// API clients. It maps HTTP outcomes onto the domain error taxonomy and trips a
// circuit breaker when the remote service keeps failing.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	logger     *slog.Logger
}

type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker. Zero disables tripping.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

func New(name, baseURL string, httpClient *http.Client, settings BreakerSettings, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		IsSuccessful: func(err error) bool {
			var ce *callerGoneError
			return err == nil || errors.As(err, &ce)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return settings.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

type RequestOption func(*http.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

type response struct {
	status int
	body   []byte
}

// serverError is returned to the breaker for 5xx responses so they count as failures.
type serverError struct {
	resp *response
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server returned status %d", e.resp.status)
}

// callerGoneError wraps a transport failure caused by the caller's own context
// ending. The remote service is not at fault, so the breaker does not count it.
type callerGoneError struct {
	err error
}

func (e *callerGoneError) Error() string { return e.err.Error() }
func (e *callerGoneError) Unwrap() error { return e.err }

// Do sends one request and decodes a 2xx body into out when out is non-nil.
// It returns the response status code alongside any error.
func (c *Client) Do(ctx context.Context, op, method, path string, in, out any, opts ...RequestOption) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(req)
	})
	if err != nil {
		var se *serverError
		if errors.As(err, &se) {
			return se.resp.status, &domain.NetworkError{Op: op, Status: se.resp.status, Err: errors.New(errorMessage(se.resp.body))}
		}
		return 0, &domain.NetworkError{Op: op, Err: err}
	}

	if err := c.mapStatus(op, resp); err != nil {
		return resp.status, err
	}

	if out != nil && len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return resp.status, &domain.DataIntegrityError{Reason: op + ": malformed response body", Err: err}
		}
	}

	return resp.status, nil
}

func (c *Client) send(req *http.Request) (*response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, &callerGoneError{err: err}
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	r := &response{status: resp.StatusCode, body: data}
	if resp.StatusCode >= http.StatusInternalServerError {
		return r, &serverError{resp: r}
	}
	return r, nil
}

func (c *Client) mapStatus(op string, resp *response) error {
	switch {
	case resp.status < http.StatusBadRequest:
		return nil
	case resp.status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case resp.status == http.StatusUnprocessableEntity || resp.status == http.StatusBadRequest:
		return validationError(resp.body)
	default:
		return &domain.NetworkError{Op: op, Status: resp.status, Err: errors.New(errorMessage(resp.body))}
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors"`
}

func validationError(body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if len(eb.Errors) > 0 {
		return &domain.ValidationError{Fields: eb.Errors}
	}
	msg := eb.Error
	if msg == "" {
		msg = "invalid request"
	}
	return domain.NewValidationError("request", msg)
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}
