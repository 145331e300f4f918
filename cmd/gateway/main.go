package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-checkout/internal/config"
	"github.com/joao-fontenele/storefront-checkout/internal/gateway"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.Load(); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	urls := make(map[string]string)
	for _, key := range []string{"STOREFRONT_SERVICE_URL", "CART_SERVICE_URL", "ORDERS_SERVICE_URL"} {
		v, err := config.Require(key)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		urls[key] = v
	}

	otelOpts, err := telemetry.FromEnv("gateway")
	if err != nil {
		logger.Error("invalid telemetry config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, otelOpts)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	handler := gateway.NewHandler(
		gateway.NewServiceProxy(urls["STOREFRONT_SERVICE_URL"], httpClient),
		gateway.NewServiceProxy(urls["CART_SERVICE_URL"], httpClient),
		gateway.NewServiceProxy(urls["ORDERS_SERVICE_URL"], httpClient),
		logger,
	)

	mux := http.NewServeMux()
	for _, pattern := range []string{
		"GET /cart",
		"POST /cart/items",
		"PATCH /cart/items/{id}",
		"DELETE /cart/items/{id}",
		"DELETE /cart",
		"GET /wishlist",
		"POST /wishlist/items",
		"DELETE /wishlist/items/{id}",
		"DELETE /wishlist",
		"GET /checkout",
		"POST /checkout",
		"DELETE /checkout",
		"GET /checkout/success",
		"POST /checkout/retry",
	} {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(handler.HandleStorefront))
	}
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}/lines", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(handler.HandleOrders))

	port := config.Get("PORT", "8080")

	server := &http.Server{
		Addr: ":" + port,
		Handler:      otelhttp.NewHandler(mux, "gateway", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
