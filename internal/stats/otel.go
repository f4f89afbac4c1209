package stats

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/tracelog/internal/stats"

// MeterObserver publishes call observations as OpenTelemetry metrics.
type MeterObserver struct {
	calls        metric.Int64Counter
	duration     metric.Float64Histogram
	sinkFailures metric.Int64Counter
}

// NewMeterObserver creates the instruments on a meter obtained from mp.
func NewMeterObserver(mp metric.MeterProvider) (*MeterObserver, error) {
	meter := mp.Meter(instrumentationName)
	m := &MeterObserver{}

	var err error
	m.calls, err = meter.Int64Counter(
		"tracelog.calls.total",
		metric.WithDescription("Total number of instrumented calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating calls counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"tracelog.calls.duration_seconds",
		metric.WithDescription("Duration of instrumented calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	m.sinkFailures, err = meter.Int64Counter(
		"tracelog.sink.failures_total",
		metric.WithDescription("Total number of records a sink failed to write"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sink failures counter: %w", err)
	}

	return m, nil
}

// ObserveCall implements Observer.
func (m *MeterObserver) ObserveCall(method string, elapsed time.Duration, failed bool) {
	ctx := context.Background()
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("method", method)))
}

// ObserveSinkFailure implements SinkFailureObserver.
func (m *MeterObserver) ObserveSinkFailure() {
	m.sinkFailures.Add(context.Background(), 1)
}
