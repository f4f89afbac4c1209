package logging

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/internal/config"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// Config describes one zap logger. It is built from the loaded tracelog
// configuration by FromDiagnostics or ForRecords rather than read directly.
type Config struct {
	Level  zapcore.Level
	Format string // "json" or "console"
	Output OutputConfig

	Sampling SamplingConfig

	Caller     bool
	CallerSkip int

	// StacktraceLevel attaches stack traces at and above this level.
	// zapcore.InvalidLevel turns them off.
	StacktraceLevel zapcore.Level

	// Fields are added to every entry.
	Fields map[string]string

	Redaction RedactionConfig
}

// OutputConfig selects the destinations of encoded entries.
type OutputConfig struct {
	Stdout bool
	Stderr bool
	OTEL   bool
	Writer io.Writer
}

func (o OutputConfig) any() bool {
	return o.Stdout || o.Stderr || o.OTEL || o.Writer != nil
}

// SamplingConfig caps repeated entries per tick. Levels without a rate pass
// through; Error and above are never sampled.
type SamplingConfig struct {
	Enabled bool
	Tick    time.Duration
	Levels  map[zapcore.Level]SampleRate
}

// SampleRate keeps the First identical entries per tick, then every
// Thereafter-th one. A zero Thereafter drops the rest.
type SampleRate struct {
	First      int
	Thereafter int
}

// DefaultSampleRates keeps debug chatter bounded while leaving warnings
// mostly intact.
func DefaultSampleRates() map[zapcore.Level]SampleRate {
	return map[zapcore.Level]SampleRate{
		TraceLevel:         {First: 1},
		zapcore.DebugLevel: {First: 10},
		zapcore.InfoLevel:  {First: 100, Thereafter: 10},
		zapcore.WarnLevel:  {First: 100, Thereafter: 100},
	}
}

// RedactionConfig drives the redacting encoder.
type RedactionConfig struct {
	Enabled     bool
	Fields      []string
	Patterns    []string
	Replacement string
}

// NewDefaultConfig returns a JSON stdout logger at Info with sampling and
// redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    time.Second,
			Levels:  DefaultSampleRates(),
		},
		Caller:          true,
		CallerSkip:      1,
		StacktraceLevel: zapcore.ErrorLevel,
		Fields:          map[string]string{"service": "tracelog"},
		Redaction: RedactionConfig{
			Enabled:     true,
			Fields:      append([]string(nil), sensitivity.DefaultFieldNames...),
			Replacement: sensitivity.DefaultRedaction,
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// mergeRedaction adds the user's redaction settings to the built-in ones.
func (c *Config) mergeRedaction(red config.RedactionConfig) {
	c.Redaction.Fields = append(c.Redaction.Fields, red.Fields...)
	c.Redaction.Patterns = append(c.Redaction.Patterns, red.Patterns...)
	if red.Replacement != "" {
		c.Redaction.Replacement = red.Replacement
	}
}

// FromDiagnostics configures the diagnostic logger. It writes to stderr so
// it never interleaves with records on stdout.
func FromDiagnostics(diag config.DiagnosticsConfig, red config.RedactionConfig) (*Config, error) {
	level, err := LevelFromString(diag.Level)
	if err != nil {
		return nil, fmt.Errorf("diagnostics level: %w", err)
	}

	cfg := NewDefaultConfig()
	cfg.Level = level
	cfg.Format = diag.Format
	cfg.Output = OutputConfig{Stderr: true, OTEL: diag.OTEL}
	cfg.Sampling.Enabled = diag.Sampling
	cfg.Sampling.Tick = diag.SamplingTick.Duration()
	cfg.mergeRedaction(red)
	return cfg, nil
}

// ForRecords configures the logger behind the console sink. Visibility is
// decided before records reach it, so it accepts every level, never samples
// and adds nothing of its own.
func ForRecords(out config.OutputConfig, red config.RedactionConfig, w io.Writer) *Config {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Format = out.Format
	cfg.Output = OutputConfig{Writer: w}
	cfg.Sampling.Enabled = false
	cfg.Caller = false
	cfg.StacktraceLevel = zapcore.InvalidLevel
	cfg.Fields = nil
	cfg.mergeRedaction(red)
	return cfg
}

// Validate reports every problem with c.
func (c *Config) Validate() error {
	var errs []error
	if c.Format != "json" && c.Format != "console" {
		errs = append(errs, fmt.Errorf("format must be 'json' or 'console', got %q", c.Format))
	}
	if !c.Output.any() {
		errs = append(errs, errors.New("at least one output must be enabled (stdout, stderr, otel or writer)"))
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		errs = append(errs, errors.New("sampling tick must be > 0 when sampling enabled"))
	}
	if c.Caller && c.CallerSkip < 0 {
		errs = append(errs, fmt.Errorf("caller skip must be >= 0, got %d", c.CallerSkip))
	}
	if c.Redaction.Enabled {
		if _, err := compilePatterns(c.Redaction.Patterns); err != nil {
			errs = append(errs, err)
		}
	}
	for k, v := range c.Fields {
		if k == "" {
			errs = append(errs, errors.New("field key cannot be empty"))
		} else if v == "" {
			errs = append(errs, fmt.Errorf("field %q has empty value", k))
		}
	}
	return errors.Join(errs...)
}
