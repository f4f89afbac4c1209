// Package logging wraps zap for tracelog's own diagnostics and for the
// console sink.
//
// Instrumented calls produce records that travel to sinks. When something
// goes wrong on the way, such as a failing or panicking sink or a dropped
// record, it is reported through a diagnostic Logger instead of reaching
// the caller:
//
//	cfg, err := logging.FromDiagnostics(conf.Diagnostics, conf.Redaction)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = ambient.WithNewCorrelationID(ctx)
//	logger.Warn(ctx, "sink write failed", zap.Error(err))
//
// Every entry carries the correlation and task ids from ambient context and
// the trace and span ids of the active OpenTelemetry span. TraceLevel sits
// below Debug.
//
// Field names matched by the sensitivity policy are replaced before
// encoding, and configured patterns are masked inside string values and
// messages, so diagnostics and rendered records agree on what is secret.
// Sampling applies per level; Error and above are never sampled.
//
// TestLogger records entries in memory for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Warn(ctx, "sink write failed")
//	tl.AssertLogged(t, zapcore.WarnLevel, "sink write failed")
//	tl.AssertNoSecrets(t)
package logging
