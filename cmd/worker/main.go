package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-checkout/internal/apiclient"
	"github.com/joao-fontenele/storefront-checkout/internal/cartapi"
	"github.com/joao-fontenele/storefront-checkout/internal/config"
	"github.com/joao-fontenele/storefront-checkout/internal/email"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
	"github.com/joao-fontenele/storefront-checkout/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.Load(); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	brokers := config.List("KAFKA_BROKERS")
	if len(brokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL, err := config.Require("EMAIL_SERVICE_URL")
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	cartServiceURL, err := config.Require("CART_SERVICE_URL")
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelOpts, err := telemetry.FromEnv("worker")
	if err != nil {
		logger.Error("invalid telemetry config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, otelOpts)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	handlerTimeout, err := config.Duration("WORKER_HANDLER_TIMEOUT", 30*time.Second)
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderCreated, config.Get("KAFKA_GROUP_ID", "checkout-worker"), logger,
		messaging.WithHandlerTimeout(handlerTimeout),
	)
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	carts := cartapi.New(apiclient.New("cart", cartServiceURL, httpClient, apiclient.DefaultBreakerSettings(), logger))
	mailer := email.NewClient(apiclient.New("email", emailServiceURL, httpClient, apiclient.DefaultBreakerSettings(), logger))
	handler := worker.NewOrderCreatedHandler(carts, mailer, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting checkout worker", "brokers", brokers)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
