// Package config loads tracelog configuration.
//
// Configuration is assembled from defaults, an optional YAML or TOML file and
// TRACELOG_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Environment names recognised by the visibility rules.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds the complete tracelog configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging" yaml:"logging"`
	Redaction   RedactionConfig   `koanf:"redaction" yaml:"redaction"`
	Output      OutputConfig      `koanf:"output" yaml:"output"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics" yaml:"diagnostics"`
	Throttle    ThrottleConfig    `koanf:"throttle" yaml:"throttle"`
	Metrics     MetricsConfig     `koanf:"metrics" yaml:"metrics"`
	Telemetry   TelemetryConfig   `koanf:"telemetry" yaml:"telemetry"`
	Server      ServerConfig      `koanf:"server" yaml:"server"`
}

// LoggingConfig controls what instrumented calls record.
type LoggingConfig struct {
	MinLevel    string `koanf:"min_level" yaml:"min_level"`
	Environment string `koanf:"environment" yaml:"environment"`

	LogParameters    bool `koanf:"log_parameters" yaml:"log_parameters"`
	LogReturnValues  bool `koanf:"log_return_values" yaml:"log_return_values"`
	LogExecutionTime bool `koanf:"log_execution_time" yaml:"log_execution_time"`
	TrackDataChanges bool `koanf:"track_data_changes" yaml:"track_data_changes"`

	MaxComparisonDepth int `koanf:"max_comparison_depth" yaml:"max_comparison_depth"`
	MaxObjectDepth     int `koanf:"max_object_depth" yaml:"max_object_depth"`
	MaxStringLength    int `koanf:"max_string_length" yaml:"max_string_length"`
	MaxCollectionItems int `koanf:"max_collection_items" yaml:"max_collection_items"`

	ParameterItems  int `koanf:"parameter_items" yaml:"parameter_items"`
	ReturnItems     int `koanf:"return_items" yaml:"return_items"`
	ParameterFields int `koanf:"parameter_fields" yaml:"parameter_fields"`
	ReturnFields    int `koanf:"return_fields" yaml:"return_fields"`
}

// RedactionConfig controls name-based redaction and free-text scrubbing.
type RedactionConfig struct {
	Fields      []string `koanf:"fields" yaml:"fields"`
	Replacement string   `koanf:"replacement" yaml:"replacement"`
	Scrub       bool     `koanf:"scrub" yaml:"scrub"`
	Patterns    []string `koanf:"patterns" yaml:"patterns"`

	// Engine selects the scrubbing detector: "regex" or "gitleaks".
	Engine string `koanf:"engine" yaml:"engine"`

	// AllowlistFile is a gitleaks-style TOML allowlist applied by either
	// engine.
	AllowlistFile string `koanf:"allowlist_file" yaml:"allowlist_file"`
}

// OutputConfig selects record sinks.
type OutputConfig struct {
	// Console writes records through zap to stdout.
	Console bool   `koanf:"console" yaml:"console"`
	Format  string `koanf:"format" yaml:"format"`

	// File appends JSON lines to the named file when set.
	File string `koanf:"file" yaml:"file"`

	// NATSURL publishes records to a NATS server when set.
	NATSURL     string `koanf:"nats_url" yaml:"nats_url"`
	NATSSubject string `koanf:"nats_subject" yaml:"nats_subject"`
}

// DiagnosticsConfig controls the side-channel logger that reports sink
// failures and internal errors.
type DiagnosticsConfig struct {
	Level        string   `koanf:"level" yaml:"level"`
	Format       string   `koanf:"format" yaml:"format"`
	Sampling     bool     `koanf:"sampling" yaml:"sampling"`
	SamplingTick Duration `koanf:"sampling_tick" yaml:"sampling_tick"`
	OTEL         bool     `koanf:"otel" yaml:"otel"`
}

// ThrottleConfig limits record volume per method. Error records are never
// throttled.
type ThrottleConfig struct {
	Enabled   bool    `koanf:"enabled" yaml:"enabled"`
	PerSecond float64 `koanf:"per_second" yaml:"per_second"`
	Burst     int     `koanf:"burst" yaml:"burst"`
}

// MetricsConfig controls execution-time statistics.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled" yaml:"enabled"`
	Window    int    `koanf:"window" yaml:"window"`
	Namespace string `koanf:"namespace" yaml:"namespace"`
}

// TelemetryConfig controls OpenTelemetry export of spans and metrics.
// Telemetry is disabled by default for users without an OTEL collector.
type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled" yaml:"enabled"`
	Endpoint       string `koanf:"endpoint" yaml:"endpoint"`
	Protocol       string `koanf:"protocol" yaml:"protocol"` // "grpc" or "http/protobuf"
	ServiceName    string `koanf:"service_name" yaml:"service_name"`
	ServiceVersion string `koanf:"service_version" yaml:"service_version"`
	Insecure       bool   `koanf:"insecure" yaml:"insecure"` // Use insecure connection (no TLS)
	TLSSkipVerify  bool   `koanf:"tls_skip_verify" yaml:"tls_skip_verify"`

	// SamplingRate is the fraction of root spans sampled, 0.0-1.0.
	SamplingRate float64 `koanf:"sampling_rate" yaml:"sampling_rate"`

	// Spans starts a span for every instrumented call.
	Spans bool `koanf:"spans" yaml:"spans"`

	MetricsInterval Duration `koanf:"metrics_interval" yaml:"metrics_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ServerConfig controls the admin HTTP server started by "tracelog serve".
type ServerConfig struct {
	Host string `koanf:"host" yaml:"host"`
	Port int    `koanf:"port" yaml:"port"`

	// RecordRequests instruments every request through the assembler.
	RecordRequests bool `koanf:"record_requests" yaml:"record_requests"`

	ShutdownTimeout Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			MinLevel:           "info",
			Environment:        EnvProduction,
			LogParameters:      true,
			LogReturnValues:    true,
			LogExecutionTime:   true,
			TrackDataChanges:   true,
			MaxComparisonDepth: 3,
			MaxObjectDepth:     3,
			MaxStringLength:    10000,
			MaxCollectionItems: 100,
			ParameterItems:     5,
			ReturnItems:        10,
			ParameterFields:    3,
			ReturnFields:       5,
		},
		Redaction: RedactionConfig{
			Replacement: "[REDACTED]",
			Scrub:       true,
			Engine:      "regex",
		},
		Output: OutputConfig{
			Console:     true,
			Format:      "json",
			NATSSubject: "tracelog.records",
		},
		Diagnostics: DiagnosticsConfig{
			Level:        "warn",
			Format:       "json",
			Sampling:     true,
			SamplingTick: Duration(time.Second),
		},
		Throttle: ThrottleConfig{
			Enabled:   false,
			PerSecond: 100,
			Burst:     200,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Window:    1000,
			Namespace: "tracelog",
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			ServiceName:     "tracelog",
			ServiceVersion:  "0.1.0",
			Insecure:        true, // Insecure by default for local dev; set false for production TLS
			SamplingRate:    1.0,
			Spans:           true,
			MetricsInterval: Duration(15 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			RecordRequests:  true,
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

var levelNames = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "dpanic": true, "panic": true, "fatal": true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !levelNames[strings.ToLower(c.Logging.MinLevel)] {
		errs = append(errs, fmt.Errorf("logging.min_level: unknown level %q", c.Logging.MinLevel))
	}
	if c.Logging.Environment == "" {
		errs = append(errs, errors.New("logging.environment is required"))
	}
	for name, v := range map[string]int{
		"logging.max_comparison_depth": c.Logging.MaxComparisonDepth,
		"logging.max_object_depth":     c.Logging.MaxObjectDepth,
		"logging.max_string_length":    c.Logging.MaxStringLength,
		"logging.max_collection_items": c.Logging.MaxCollectionItems,
		"logging.parameter_items":      c.Logging.ParameterItems,
		"logging.return_items":         c.Logging.ReturnItems,
		"logging.parameter_fields":     c.Logging.ParameterFields,
		"logging.return_fields":        c.Logging.ReturnFields,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", name, v))
		}
	}

	for _, p := range c.Redaction.Patterns {
		if len(p) > 1000 {
			errs = append(errs, fmt.Errorf("redaction pattern too long (max 1000 chars): %q", p))
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("invalid redaction pattern %q: %w", p, err))
		}
	}

	if c.Output.NATSURL != "" && (c.Output.NATSSubject == "" || strings.ContainsAny(c.Output.NATSSubject, "*> ")) {
		errs = append(errs, fmt.Errorf("output.nats_subject must be a literal subject, got %q", c.Output.NATSSubject))
	}

	if c.Redaction.Engine != "regex" && c.Redaction.Engine != "gitleaks" {
		errs = append(errs, fmt.Errorf("redaction.engine must be 'regex' or 'gitleaks', got %q", c.Redaction.Engine))
	}

	if c.Output.Format != "json" && c.Output.Format != "console" && c.Output.Format != "text" {
		errs = append(errs, fmt.Errorf("output.format must be 'json', 'console' or 'text', got %q", c.Output.Format))
	}

	if !levelNames[strings.ToLower(c.Diagnostics.Level)] {
		errs = append(errs, fmt.Errorf("diagnostics.level: unknown level %q", c.Diagnostics.Level))
	}
	if c.Diagnostics.Format != "json" && c.Diagnostics.Format != "console" {
		errs = append(errs, fmt.Errorf("diagnostics.format must be 'json' or 'console', got %q", c.Diagnostics.Format))
	}
	if c.Diagnostics.Sampling && c.Diagnostics.SamplingTick.Duration() <= 0 {
		errs = append(errs, errors.New("diagnostics.sampling_tick must be > 0 when sampling enabled"))
	}

	if c.Throttle.Enabled {
		if c.Throttle.PerSecond <= 0 {
			errs = append(errs, fmt.Errorf("throttle.per_second must be > 0, got %v", c.Throttle.PerSecond))
		}
		if c.Throttle.Burst <= 0 {
			errs = append(errs, fmt.Errorf("throttle.burst must be > 0, got %d", c.Throttle.Burst))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Window <= 0 {
		errs = append(errs, fmt.Errorf("metrics.window must be > 0, got %d", c.Metrics.Window))
	}

	errs = append(errs, c.Telemetry.validate()...)

	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (t TelemetryConfig) validate() []error {
	if !t.Enabled {
		return nil
	}

	var errs []error
	if t.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if t.ServiceName == "" {
		errs = append(errs, errors.New("telemetry.service_name is required when telemetry is enabled"))
	}
	if t.Protocol != "grpc" && t.Protocol != "http/protobuf" {
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", t.Protocol))
	}
	// Security: Prevent insecure connections to remote endpoints
	if t.Insecure && !t.isLocalEndpoint() {
		errs = append(errs, errors.New("telemetry: insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint (localhost/127.0.0.1)"))
	}
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", t.SamplingRate))
	}
	if t.MetricsInterval.Duration() <= 0 {
		errs = append(errs, errors.New("telemetry.metrics_interval must be positive"))
	}
	if t.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("telemetry.shutdown_timeout must be positive"))
	}
	return errs
}

// isLocalEndpoint checks if the endpoint is a local address.
func (t TelemetryConfig) isLocalEndpoint() bool {
	host := strings.TrimPrefix(strings.TrimPrefix(t.Endpoint, "https://"), "http://")

	// Handle IPv6 addresses (may be bracketed like [::1]:4317)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.")
}

// IsDevelopment reports whether debug-level calls are visible.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Logging.Environment, EnvDevelopment)
}
