// Package telemetry provides OpenTelemetry tracing and metrics for tracelog.
//
// # Overview
//
// Telemetry builds a TracerProvider and a MeterProvider exporting over OTLP
// (gRPC or HTTP/protobuf) to a collector. The record assembler uses the
// tracer to open one span per instrumented call, which makes the span's
// trace id the call's correlation id. Execution-time statistics are
// published through the meter provider.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	obs, err := stats.NewMeterObserver(tel.MeterProvider())
//	asm, err := record.NewAssembler(sink, record.WithTracer(tel.Tracer("tracelog")), record.WithObserver(obs))
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "orders"
//	  sampling_rate: 1.0
//	  metrics_interval: "15s"
//
// # Error Handling
//
// Telemetry failures do not crash the application. If a provider cannot be
// initialized, the instance is marked degraded and falls back to the global
// (by default no-op) provider.
//
// # Testing
//
// Recorder is an enabled Telemetry with in-memory readers:
//
//	rec := telemetry.NewRecorder()
//	asm, _ := record.NewAssembler(sink, record.WithTracer(rec.Tracer("test")))
//	// ... run an instrumented call ...
//	rec.AssertCallSpan(t, "Orders", "Save", false)
package telemetry
