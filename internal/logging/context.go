package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelog/pkg/ambient"
)

// ContextFields returns the ids that tie a diagnostic entry to the call
// that produced it: correlation and task ids from the ambient context, then
// the OpenTelemetry trace and span ids when a valid span is active.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}

	var fields []zap.Field
	if id := ambient.CorrelationID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if id := ambient.TaskID(ctx); id != "" {
		fields = append(fields, zap.String("task_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	return fields
}
