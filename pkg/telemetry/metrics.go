// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/kairos-console/pkg/errors"
)

// MeterName is the instrumentation scope of console metrics.
const MeterName = "kairos-console"

// QueryMetrics records backend query and widget state metrics.
type QueryMetrics struct {
	queries      metric.Int64Counter
	queryErrors  metric.Int64Counter
	duration     metric.Float64Histogram
	widgetStates metric.Int64Counter
	breakerState metric.Int64Gauge
}

// NewQueryMetrics creates the console instruments on the global meter
// provider.
func NewQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter(MeterName)

	queries, err := meter.Int64Counter(
		"console.query.total",
		metric.WithDescription("Backend queries by data source and query type"),
	)
	if err != nil {
		return nil, err
	}
	queryErrors, err := meter.Int64Counter(
		"console.query.errors",
		metric.WithDescription("Failed backend queries by data source and error code"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"console.query.duration_ms",
		metric.WithDescription("Backend query latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	widgetStates, err := meter.Int64Counter(
		"console.widget.state",
		metric.WithDescription("Widget state transitions by target state"),
	)
	if err != nil {
		return nil, err
	}
	breakerState, err := meter.Int64Gauge(
		"console.circuitbreaker.state",
		metric.WithDescription("Backend circuit breaker state (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}
	return &QueryMetrics{
		queries:      queries,
		queryErrors:  queryErrors,
		duration:     duration,
		widgetStates: widgetStates,
		breakerState: breakerState,
	}, nil
}

// RecordQuery records one finished backend query. A nil receiver is a no-op.
func (m *QueryMetrics) RecordQuery(ctx context.Context, dataSource, queryType string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrDataSource, dataSource),
		attribute.String(AttrQueryType, queryType),
	)
	m.queries.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	if err != nil {
		ce := errors.AsConsoleError(err)
		m.queryErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrDataSource, dataSource),
			attribute.String(AttrErrorCode, string(ce.Code)),
			attribute.String("recoverable", ce.RecoverableString()),
		))
	}
}

// RecordWidgetState records a widget entering state.
func (m *QueryMetrics) RecordWidgetState(ctx context.Context, dashboard, state string) {
	if m == nil {
		return
	}
	m.widgetStates.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrDashboard, dashboard),
		attribute.String(AttrWidgetState, state),
	))
}

// RecordBreakerState records a circuit breaker state
// (0=open, 1=half-open, 2=closed).
func (m *QueryMetrics) RecordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker", name)))
}
