package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// returnedHeaders are copied from the upstream response.
var returnedHeaders = []string{"Content-Type", "Location"}

type Handler struct {
	storefront *ServiceProxy
	catalog    *ServiceProxy
	orders     *ServiceProxy
	logger     *slog.Logger
}

func NewHandler(storefront, catalog, orders *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		storefront: storefront,
		catalog:    catalog,
		orders:     orders,
		logger:     logger,
	}
}

// HandleStorefront serves /cart, /wishlist and /checkout.
func (h *Handler) HandleStorefront(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.storefront, r.URL.Path)
}

// HandleCatalog serves /products from the cart service.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.catalog, r.URL.Path)
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.orders, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for _, k := range returnedHeaders {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
