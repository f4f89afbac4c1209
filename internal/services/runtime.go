package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelog/internal/config"
	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/internal/secrets"
	"github.com/fyrsmithlabs/tracelog/internal/stats"
	"github.com/fyrsmithlabs/tracelog/internal/telemetry"
	"github.com/fyrsmithlabs/tracelog/internal/throttle"
	"github.com/fyrsmithlabs/tracelog/pkg/record"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
	"github.com/fyrsmithlabs/tracelog/pkg/sink"
)

// InstrumentationName is the tracer name used for call spans.
const InstrumentationName = "github.com/fyrsmithlabs/tracelog"

// Env supplies the process-level dependencies Build cannot take from
// configuration.
type Env struct {
	// Stdout receives console records. Defaults to os.Stdout.
	Stdout io.Writer

	// Registerer receives the Prometheus metrics. Nil skips registration.
	Registerer prometheus.Registerer

	// LoggerProvider receives diagnostics when diagnostics.otel is set.
	LoggerProvider log.LoggerProvider

	// TelemetryOptions are passed to telemetry.New.
	TelemetryOptions []telemetry.Option
}

// Runtime is a running tracelog instance.
type Runtime struct {
	Registry

	sink      *sink.MultiSink
	recLogger *logging.Logger
}

// Build validates cfg and wires every component it enables. On error,
// components already opened are closed.
func Build(ctx context.Context, cfg *config.Config, env Env) (_ *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	settings, err := SettingsFrom(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}

	diagCfg, err := logging.FromDiagnostics(cfg.Diagnostics, cfg.Redaction)
	if err != nil {
		return nil, err
	}
	diag, err := logging.NewLogger(diagCfg, env.LoggerProvider)
	if err != nil {
		return nil, fmt.Errorf("creating diagnostic logger: %w", err)
	}

	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.closeSinks()
		}
	}()

	sinks, err := rt.openSinks(cfg, env.Stdout)
	if err != nil {
		return nil, err
	}
	rt.sink = sink.Multi(sinks...)

	var scrubber secrets.Scrubber
	if cfg.Redaction.Scrub {
		scrubber, err = secrets.New(secrets.FromConfig(cfg.Redaction))
		if err != nil {
			return nil, fmt.Errorf("creating scrubber: %w", err)
		}
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry, env.TelemetryOptions...)
	if err != nil {
		return nil, err
	}
	if h := tel.Health(); h.Degraded {
		diag.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	var observers []stats.Observer
	var collector *stats.Collector
	if cfg.Metrics.Enabled {
		collector = stats.NewCollector(cfg.Metrics.Window, cfg.Metrics.Namespace, env.Registerer)
		observers = append(observers, collector)
	}
	if tel.IsEnabled() {
		mo, err := stats.NewMeterObserver(tel.MeterProvider())
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, err
		}
		observers = append(observers, mo)
	}

	policy := Policy(cfg.Redaction)
	opts := []record.Option{
		record.WithLogger(diag),
		record.WithSettings(settings),
		record.WithPolicy(policy),
	}
	limiter := throttle.FromConfig(cfg.Throttle)
	if limiter != nil {
		opts = append(opts, record.WithThrottler(limiter))
	}
	if len(observers) > 0 {
		opts = append(opts, record.WithObserver(stats.Multi(observers...)))
	}
	if scrubber != nil {
		opts = append(opts, record.WithScrubber(scrubber))
	}
	if tel.SpansEnabled() {
		opts = append(opts, record.WithTracer(tel.Tracer(InstrumentationName)))
	}

	assembler, err := record.NewAssembler(rt.sink, opts...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	rt.Registry = NewRegistry(Options{
		Assembler: assembler,
		Sink:      rt.sink,
		Logger:    diag,
		Stats:     collector,
		Throttle:  limiter,
		Scrubber:  scrubber,
		Telemetry: tel,
		Policy:    policy,
	})
	diag.Debug(ctx, "tracelog started",
		zap.Bool("console", cfg.Output.Console),
		zap.String("file", cfg.Output.File),
		zap.String("nats", cfg.Output.NATSURL),
		zap.Bool("telemetry", tel.IsEnabled()))
	return rt, nil
}

func (rt *Runtime) openSinks(cfg *config.Config, stdout io.Writer) ([]record.Sink, error) {
	var sinks []record.Sink
	if cfg.Output.Console {
		if cfg.Output.Format == "text" {
			sinks = append(sinks, sink.Text(stdout))
		} else {
			l, err := logging.NewLogger(logging.ForRecords(cfg.Output, cfg.Redaction, stdout), nil)
			if err != nil {
				return nil, fmt.Errorf("creating console sink: %w", err)
			}
			rt.recLogger = l
			sinks = append(sinks, sink.FromLogger(l))
		}
	}
	if cfg.Output.File != "" {
		f, err := sink.OpenJSONFile(cfg.Output.File)
		if err != nil {
			return nil, fmt.Errorf("opening record file: %w", err)
		}
		sinks = append(sinks, f)
	}
	if cfg.Output.NATSURL != "" {
		n, err := sink.ConnectNATS(cfg.Output.NATSURL, cfg.Output.NATSSubject)
		if err != nil {
			_ = sink.Multi(sinks...).Close()
			return nil, err
		}
		sinks = append(sinks, n)
	}
	return sinks, nil
}

// SettingsFrom converts the logging section into assembler settings.
func SettingsFrom(lc config.LoggingConfig) (record.Settings, error) {
	level, err := logging.LevelFromString(lc.MinLevel)
	if err != nil {
		return record.Settings{}, fmt.Errorf("logging.min_level: %w", err)
	}
	return record.Settings{
		MinLevel:           level,
		Environment:        lc.Environment,
		LogParameters:      lc.LogParameters,
		LogReturnValues:    lc.LogReturnValues,
		LogExecutionTime:   lc.LogExecutionTime,
		TrackDataChanges:   lc.TrackDataChanges,
		MaxComparisonDepth: lc.MaxComparisonDepth,
		MaxObjectDepth:     lc.MaxObjectDepth,
		MaxStringLength:    lc.MaxStringLength,
		MaxCollectionItems: lc.MaxCollectionItems,
		ParameterItems:     lc.ParameterItems,
		ReturnItems:        lc.ReturnItems,
		ParameterFields:    lc.ParameterFields,
		ReturnFields:       lc.ReturnFields,
	}, nil
}

// Policy returns the default sensitive names extended with the configured
// ones.
func Policy(red config.RedactionConfig) *sensitivity.Policy {
	names := append(append([]string(nil), sensitivity.DefaultFieldNames...), red.Fields...)
	p := sensitivity.NewPolicy(names...)
	if red.Replacement != "" {
		p = p.WithReplacement(red.Replacement)
	}
	return p
}

// Apply replaces the assembler settings with those in cfg. Other sections
// take effect only on the next Build.
func (rt *Runtime) Apply(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	settings, err := SettingsFrom(cfg.Logging)
	if err != nil {
		return err
	}
	rt.Assembler().SetSettings(settings)
	rt.Logger().Info(ctx, "settings applied",
		zap.String("min_level", cfg.Logging.MinLevel),
		zap.String("environment", cfg.Logging.Environment))
	return nil
}

// Watch applies path to the running instance every time it changes.
// Reload failures are logged and leave the current settings in place.
func (rt *Runtime) Watch(ctx context.Context, path string) (*config.Watcher, error) {
	return config.Watch(ctx, path,
		func(cfg *config.Config) {
			if err := rt.Apply(ctx, cfg); err != nil {
				rt.Logger().Warn(ctx, "config reload rejected", zap.String("path", path), zap.Error(err))
			}
		},
		func(err error) {
			rt.Logger().Warn(ctx, "config reload failed", zap.String("path", path), zap.Error(err))
		})
}

// Close flushes telemetry, closes file sinks and syncs the loggers.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Registry != nil {
		if err := rt.Telemetry().Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.closeSinks(); err != nil {
		errs = append(errs, err)
	}
	if rt.Registry != nil {
		if err := rt.Logger().Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeSinks() error {
	var errs []error
	if rt.sink != nil {
		if err := rt.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.recLogger != nil {
		if err := rt.recLogger.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
