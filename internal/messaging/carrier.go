package messaging

import (
	"slices"

	"github.com/segmentio/kafka-go"
)

// TopicOrderCreated carries domain.OrderCreatedEvent, keyed by order id.
const TopicOrderCreated = "order.created"

// HeaderEventType names the payload schema so consumers can skip events
// they do not understand without decoding them.
const HeaderEventType = "event-type"

// HeaderCarrier exposes kafka message headers as an otel TextMapCarrier.
type HeaderCarrier struct {
	msg *kafka.Message
}

func NewHeaderCarrier(msg *kafka.Message) *HeaderCarrier {
	return &HeaderCarrier{msg: msg}
}

func (c *HeaderCarrier) index(key string) int {
	return slices.IndexFunc(c.msg.Headers, func(h kafka.Header) bool { return h.Key == key })
}

func (c *HeaderCarrier) Get(key string) string {
	if i := c.index(key); i >= 0 {
		return string(c.msg.Headers[i].Value)
	}
	return ""
}

// Set replaces an existing header in place; kafka allows duplicates but the
// propagator expects one value per key.
func (c *HeaderCarrier) Set(key, value string) {
	if i := c.index(key); i >= 0 {
		c.msg.Headers[i].Value = []byte(value)
		return
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *HeaderCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
