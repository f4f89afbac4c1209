package services

import (
	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/internal/secrets"
	"github.com/fyrsmithlabs/tracelog/internal/stats"
	"github.com/fyrsmithlabs/tracelog/internal/telemetry"
	"github.com/fyrsmithlabs/tracelog/internal/throttle"
	"github.com/fyrsmithlabs/tracelog/pkg/record"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// Registry provides access to the components of a tracelog instance.
// Optional components that are disabled in configuration are nil.
type Registry interface {
	Assembler() *record.Assembler
	Sink() record.Sink
	Logger() *logging.Logger
	Stats() *stats.Collector
	Throttle() *throttle.Limiter
	Scrubber() secrets.Scrubber
	Telemetry() *telemetry.Telemetry
	Policy() *sensitivity.Policy
}

// Options configures the registry with component instances.
type Options struct {
	Assembler *record.Assembler
	Sink      record.Sink
	Logger    *logging.Logger
	Stats     *stats.Collector
	Throttle  *throttle.Limiter
	Scrubber  secrets.Scrubber
	Telemetry *telemetry.Telemetry
	Policy    *sensitivity.Policy
}

// registry is the concrete implementation of Registry.
type registry struct {
	assembler *record.Assembler
	sink      record.Sink
	logger    *logging.Logger
	stats     *stats.Collector
	throttle  *throttle.Limiter
	scrubber  secrets.Scrubber
	telemetry *telemetry.Telemetry
	policy    *sensitivity.Policy
}

// NewRegistry creates a new registry. A nil Logger is replaced with a no-op
// logger and a nil Policy with sensitivity.DefaultPolicy.
func NewRegistry(opts Options) Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Policy == nil {
		opts.Policy = sensitivity.DefaultPolicy()
	}
	return &registry{
		assembler: opts.Assembler,
		sink:      opts.Sink,
		logger:    opts.Logger,
		stats:     opts.Stats,
		throttle:  opts.Throttle,
		scrubber:  opts.Scrubber,
		telemetry: opts.Telemetry,
		policy:    opts.Policy,
	}
}

func (r *registry) Assembler() *record.Assembler    { return r.assembler }
func (r *registry) Sink() record.Sink               { return r.sink }
func (r *registry) Logger() *logging.Logger         { return r.logger }
func (r *registry) Stats() *stats.Collector         { return r.stats }
func (r *registry) Throttle() *throttle.Limiter     { return r.throttle }
func (r *registry) Scrubber() secrets.Scrubber      { return r.scrubber }
func (r *registry) Telemetry() *telemetry.Telemetry { return r.telemetry }
func (r *registry) Policy() *sensitivity.Policy      { return r.policy }
