// Package services assembles a running tracelog instance from configuration.
//
// Build wires the record assembler to its sinks, the diagnostic logger,
// execution statistics, throttling, secret scrubbing and OpenTelemetry.
// The resulting Runtime exposes each component through the Registry
// accessors and owns their shutdown:
//
//	rt, err := services.Build(ctx, cfg, services.Env{})
//	if err != nil {
//		return err
//	}
//	defer rt.Close(ctx)
//
//	order, err := record.Invoke(ctx, rt.Assembler(), call, ship)
//
// Logging settings can be changed at runtime with Apply or by watching the
// config file with Watch. Sinks and telemetry are fixed at Build time.
package services
