package checkout

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts checkout outcomes. A nil *Metrics records nothing.
type Metrics struct {
	started        metric.Int64Counter
	outcomes       metric.Int64Counter
	linesPersisted metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	started, err := meter.Int64Counter("checkout.started",
		metric.WithDescription("Checkouts handed off to the payment gateway"))
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter("checkout.outcomes",
		metric.WithDescription("Reconciled checkouts by final state"))
	if err != nil {
		return nil, err
	}

	linesPersisted, err := meter.Int64Counter("checkout.lines_persisted",
		metric.WithDescription("Order lines confirmed by the order service"))
	if err != nil {
		return nil, err
	}

	return &Metrics{started: started, outcomes: outcomes, linesPersisted: linesPersisted}, nil
}

func (m *Metrics) recordStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.started.Add(ctx, 1)
}

func (m *Metrics) recordOutcome(ctx context.Context, state string, lines int) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
	if lines > 0 {
		m.linesPersisted.Add(ctx, int64(lines))
	}
}
