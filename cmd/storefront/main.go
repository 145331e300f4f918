package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/text/currency"

	"github.com/joao-fontenele/storefront-checkout/internal/apiclient"
	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/cartapi"
	"github.com/joao-fontenele/storefront-checkout/internal/checkout"
	"github.com/joao-fontenele/storefront-checkout/internal/config"
	"github.com/joao-fontenele/storefront-checkout/internal/orderapi"
	"github.com/joao-fontenele/storefront-checkout/internal/pricing"
	"github.com/joao-fontenele/storefront-checkout/internal/storefront"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
	"github.com/joao-fontenele/storefront-checkout/internal/wishlist"
)

type settings struct {
	cartURL     string
	ordersURL   string
	gatewayURL  string
	returnURL   string
	merchantID  string
	redisURL    string
	persister   checkout.PersisterKind
	fanOutLimit int
	slotTTL     time.Duration
	sessionIdle time.Duration
	policy      pricing.Policy
	currency    currency.Unit
	port        string
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	if s.cartURL, err = config.Require("CART_SERVICE_URL"); err != nil {
		return s, err
	}
	if s.ordersURL, err = config.Require("ORDERS_SERVICE_URL"); err != nil {
		return s, err
	}
	if s.gatewayURL, err = config.Require("PAYMENT_GATEWAY_URL"); err != nil {
		return s, err
	}
	if s.returnURL, err = config.Require("CHECKOUT_RETURN_URL"); err != nil {
		return s, err
	}
	s.merchantID = config.Get("PAYMENT_MERCHANT_ID", "storefront")
	s.redisURL = config.Get("REDIS_URL", "")

	if s.persister, err = checkout.ParsePersisterKind(config.Get("CHECKOUT_PERSISTER", "")); err != nil {
		return s, err
	}
	if s.fanOutLimit, err = config.Int("CHECKOUT_FANOUT_LIMIT", 4); err != nil {
		return s, err
	}
	if s.slotTTL, err = config.Duration("CHECKOUT_SLOT_TTL", checkout.DefaultSlotTTL); err != nil {
		return s, err
	}
	if s.sessionIdle, err = config.Duration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return s, err
	}
	if s.policy.ShippingFlat, err = config.Float("SHIPPING_FLAT", 0); err != nil {
		return s, err
	}
	if s.policy.FreeShippingOver, err = config.Float("FREE_SHIPPING_OVER", 0); err != nil {
		return s, err
	}
	if s.policy.TaxRate, err = config.Float("TAX_RATE", 0); err != nil {
		return s, err
	}
	if s.currency, err = pricing.ParseCurrency(config.Get("STORE_CURRENCY", "USD")); err != nil {
		return s, err
	}
	s.port = config.Get("PORT", "8083")
	return s, nil
}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.Load(); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cfg, err := loadSettings()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	otelOpts, err := telemetry.FromEnv("storefront")
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

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(otelOpts)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	checkoutMetrics, err := checkout.NewMetrics(otel.Meter("storefront/checkout"))
	if err != nil {
		logger.Error("failed to create checkout metrics", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	cartClient := cartapi.New(apiclient.New("cart", cfg.cartURL, httpClient, apiclient.DefaultBreakerSettings(), logger))
	orderClient := orderapi.New(apiclient.New("orders", cfg.ordersURL, httpClient, apiclient.DefaultBreakerSettings(), logger))

	var slot checkout.Slot = checkout.NewMemorySlot(cfg.slotTTL)
	if cfg.redisURL != "" {
		opts, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slot = checkout.NewRedisSlot(rdb, cfg.slotTTL)
	} else {
		logger.Warn("REDIS_URL not set, pending orders are kept in memory")
	}

	var persister checkout.Persister = checkout.NewAtomic(orderClient)
	if cfg.persister == checkout.PersisterFanOut {
		persister = checkout.NewFanOut(orderClient, cfg.fanOutLimit, logger)
	}

	gateway, err := checkout.NewHostedGateway(cfg.gatewayURL, cfg.returnURL, cfg.merchantID)
	if err != nil {
		logger.Error("invalid payment gateway config", "error", err)
		os.Exit(1)
	}

	sessions := storefront.NewSessions(func(userID string) *storefront.Session {
		return &storefront.Session{
			Cart:     cart.NewStore(cartClient, userID, logger),
			Wishlist: wishlist.NewStore(),
			Checkout: checkout.NewBridge(userID, slot, persister, gateway,
				checkout.WithIntents(orderClient),
				checkout.WithPolicy(cfg.policy),
				checkout.WithCurrency(cfg.currency),
				checkout.WithMetrics(checkoutMetrics),
				checkout.WithLogger(logger),
			),
		}
	}, cfg.sessionIdle)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, time.Minute)

	handler := storefront.NewHandler(sessions, cartClient, orderClient, logger)

	mux := http.NewServeMux()
	handler.Register(mux, telemetry.WithHTTPRoute)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.port,
		Handler:      otelhttp.NewHandler(mux, "storefront", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", cfg.port, "persister", string(cfg.persister))
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
