package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// HandlerFunc processes one message payload. Returning an error wrapped with
// Permanent commits the message anyway; any other error stops consumption so
// the message is redelivered.
type HandlerFunc func(ctx context.Context, payload []byte) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering, e.g. an undecodable payload.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Consumer struct {
	reader         *kafka.Reader
	topic          string
	groupID        string
	handlerTimeout time.Duration
	logger         *slog.Logger
}

type consumerConfig struct {
	reader         kafka.ReaderConfig
	handlerTimeout time.Duration
}

type ConsumerOption func(*consumerConfig)

func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.reader.StartOffset = offset
	}
}

// WithHandlerTimeout bounds the time a handler may spend on one message.
// Zero leaves handlers bound only by the consume context.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.handlerTimeout = d
	}
}

func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	cfg := consumerConfig{
		reader: kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer{
		reader:         kafka.NewReader(cfg.reader),
		topic:          topic,
		groupID:        groupID,
		handlerTimeout: cfg.handlerTimeout,
		logger:         logger,
	}
}

// Consume blocks until ctx is cancelled or a handler fails with a
// non-permanent error. Messages are committed one at a time after the
// handler returns.
func (c *Consumer) Consume(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(ctx, msg, handler); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handle returns nil for messages that should be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler HandlerFunc) error {
	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}

	err := c.process(ctx, msg, handler)
	if err == nil || !IsPermanent(err) {
		return err
	}
	c.logger.Warn("message dropped",
		"error", err,
		"topic", c.topic,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"event_type", NewHeaderCarrier(&msg).Get(HeaderEventType),
	)
	return nil
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler HandlerFunc) error {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&msg))

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(c.topic),
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
		),
	)
	defer span.End()

	if err := handler(spanCtx, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
