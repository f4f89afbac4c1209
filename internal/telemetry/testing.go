package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/tracelog/internal/config"
)

// Recorder is an enabled Telemetry backed by in-memory span and metric
// readers. It never touches the global providers.
type Recorder struct {
	*Telemetry

	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

// NewRecorder returns a Recorder with span creation switched on.
func NewRecorder() *Recorder {
	cfg := config.Default().Telemetry
	cfg.Enabled = true
	cfg.Spans = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	tel := &Telemetry{
		config:         cfg,
		tracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(spans)),
		meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	return &Recorder{Telemetry: tel, spans: spans, reader: reader}
}

// Span returns the first ended span called name, or nil.
func (r *Recorder) Span(name string) trace.ReadOnlySpan {
	for _, s := range r.spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// SpanNames lists ended spans in end order.
func (r *Recorder) SpanNames() []string {
	ended := r.spans.Ended()
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	return names
}

// AssertCallSpan checks that the span for a Type.Method call ended with the
// expected status and carries the code.* attributes.
func (r *Recorder) AssertCallSpan(tb testing.TB, typ, method string, failed bool) {
	tb.Helper()
	name := typ + "." + method
	span := r.Span(name)
	if span == nil {
		tb.Fatalf("no span %q, have %v", name, r.SpanNames())
	}
	attrs := attribute.NewSet(span.Attributes()...)
	if v, _ := attrs.Value("code.namespace"); v.AsString() != typ {
		tb.Errorf("span %q code.namespace = %q, want %q", name, v.AsString(), typ)
	}
	if v, _ := attrs.Value("code.function"); v.AsString() != method {
		tb.Errorf("span %q code.function = %q, want %q", name, v.AsString(), method)
	}
	if got := span.Status().Code == codes.Error; got != failed {
		tb.Errorf("span %q failed = %v, want %v", name, got, failed)
	}
}

// Collect reads the current metrics.
func (r *Recorder) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := r.reader.Collect(ctx, &rm)
	return rm, err
}

// CounterTotal sums every data point of the int64 counter called name.
// Missing counters read as zero.
func (r *Recorder) CounterTotal(ctx context.Context, name string) (int64, error) {
	rm, err := r.Collect(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total, nil
}
