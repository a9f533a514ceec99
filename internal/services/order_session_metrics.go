package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/starrysand/api/internal/order"
)

const meterName = "github.com/starrysand/api/internal/services"

type orderSessionMetrics struct {
	sessions         metric.Int64UpDownCounter
	mutations        metric.Int64Counter
	discountAttempts metric.Int64Counter
	finalPrice       metric.Float64Histogram
}

func newOrderSessionMetrics(meter metric.Meter) (*orderSessionMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}
	var (
		m   orderSessionMetrics
		err error
	)
	m.sessions, err = meter.Int64UpDownCounter("starrysand.order.sessions",
		metric.WithDescription("Live order sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("order session metrics: sessions: %w", err)
	}
	m.mutations, err = meter.Int64Counter("starrysand.order.mutations",
		metric.WithDescription("Order mutations by operation"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("order session metrics: mutations: %w", err)
	}
	m.discountAttempts, err = meter.Int64Counter("starrysand.order.discount_attempts",
		metric.WithDescription("Discount code redemptions by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("order session metrics: discount attempts: %w", err)
	}
	m.finalPrice, err = meter.Float64Histogram("starrysand.order.final_price",
		metric.WithDescription("Final price quoted after each mutation"),
		metric.WithUnit("{CNY}"),
	)
	if err != nil {
		return nil, fmt.Errorf("order session metrics: final price: %w", err)
	}
	return &m, nil
}

func (m *orderSessionMetrics) sessionOpened(ctx context.Context) {
	m.sessions.Add(ctx, 1)
}

func (m *orderSessionMetrics) sessionsClosed(ctx context.Context, n int) {
	if n > 0 {
		m.sessions.Add(ctx, -int64(n))
	}
}

func (m *orderSessionMetrics) mutation(ctx context.Context, operation string, finalPrice decimal.Decimal) {
	m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	m.finalPrice.Record(ctx, finalPrice.InexactFloat64())
}

func (m *orderSessionMetrics) discountAttempt(ctx context.Context, outcome order.DiscountOutcome) {
	m.discountAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}
