// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/semkernel/pkg/errors"
)

// InvocationMetrics records function invocation counts, failures and
// latency.
type InvocationMetrics struct {
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewInvocationMetrics creates the instruments on the global meter
// provider.
func NewInvocationMetrics() (*InvocationMetrics, error) {
	return NewInvocationMetricsWithMeter(otel.Meter("semkernel/kernel"))
}

// NewInvocationMetricsWithMeter creates the instruments on meter.
func NewInvocationMetricsWithMeter(meter metric.Meter) (*InvocationMetrics, error) {
	invocations, err := meter.Int64Counter(
		"semkernel.function.invocations",
		metric.WithDescription("Function invocations by skill, function and kind"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"semkernel.function.failures",
		metric.WithDescription("Failed function invocations by error code"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"semkernel.function.duration",
		metric.WithDescription("Function invocation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &InvocationMetrics{
		invocations: invocations,
		failures:    failures,
		duration:    duration,
	}, nil
}

// RecordInvocation records one invocation. A non-nil err also counts as a
// failure labelled with its error code.
func (m *InvocationMetrics) RecordInvocation(ctx context.Context, skill, function, kind string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrSkill, skill),
		attribute.String(AttrFunction, function),
		attribute.String(AttrFunctionKind, kind),
	}
	m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attrs...))

	if err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	m.failures.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String(AttrErrorCode, code))...))
}
