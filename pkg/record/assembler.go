package record

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/internal/stats"
	"github.com/fyrsmithlabs/tracelog/pkg/ambient"
	"github.com/fyrsmithlabs/tracelog/pkg/render"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
	"github.com/fyrsmithlabs/tracelog/pkg/tracker"
)

// ErrInvalidArgument is returned when a required input is missing.
var ErrInvalidArgument = tracker.ErrInvalidArgument

// Throttler decides whether a non-error record for key may be emitted.
type Throttler interface {
	Allow(key string) bool
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the diagnostic logger that reports sink failures.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.diag = l
		}
	}
}

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(a *Assembler) { a.SetSettings(s) }
}

// WithThrottler limits non-error records per method.
func WithThrottler(t Throttler) Option {
	return func(a *Assembler) { a.throttler = t }
}

// WithObserver receives the duration and outcome of every completed call.
// Observers that implement stats.SinkFailureObserver are also told about
// sink failures.
func WithObserver(o stats.Observer) Option {
	return func(a *Assembler) { a.observer = o }
}

// WithPolicy sets the name policy used for parameters, fields and context.
func WithPolicy(p *sensitivity.Policy) Option {
	return func(a *Assembler) { a.policy = p }
}

// WithScrubber sets a scrubber applied to every rendered string.
func WithScrubber(s render.Scrubber) Option {
	return func(a *Assembler) { a.scrubber = s }
}

// WithTracer opens a span around every instrumented call. The span's trace
// id becomes the correlation id unless the context already carries one.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assembler) { a.tracer = t }
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// Assembler builds records for instrumented calls and hands them to a Sink.
// It is safe for concurrent use; its only shared state is the current
// Settings, which can be swapped at runtime.
type Assembler struct {
	sink      Sink
	diag      *logging.Logger
	settings  atomic.Pointer[Settings]
	throttler Throttler
	observer  stats.Observer
	policy    *sensitivity.Policy
	scrubber  render.Scrubber
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAssembler returns an Assembler writing to sink.
func NewAssembler(sink Sink, opts ...Option) (*Assembler, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is nil", ErrInvalidArgument)
	}
	a := &Assembler{
		sink:   sink,
		diag:   logging.NewNop(),
		policy: sensitivity.DefaultPolicy(),
		now:    time.Now,
	}
	a.SetSettings(DefaultSettings())
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SetSettings atomically replaces the settings. Records already being
// assembled keep the settings they started with.
func (a *Assembler) SetSettings(s Settings) {
	s = s.normalized()
	a.settings.Store(&s)
}

// Settings returns the current settings.
func (a *Assembler) Settings() Settings {
	return *a.settings.Load()
}

func (a *Assembler) renderer(s *Settings, items, fields int) *render.Renderer {
	opts := s.rendererOptions(items, fields)
	opts.Policy = a.policy
	opts.Scrubber = a.scrubber
	return render.New(opts)
}

// Scope is an in-flight call between its Entering and Exiting records. It
// is not safe for concurrent use. A nil Scope ignores every call.
type Scope struct {
	a        *Assembler
	ctx      context.Context
	call     Call
	name     string
	attr     Attribute
	settings *Settings

	correlationID string
	taskID        string
	start         time.Time
	visible       bool

	span       trace.Span
	tracker    *tracker.Tracker
	beforeType reflect.Type

	done bool
}

// Begin enters a call. The Entering record is emitted when the call is
// visible under the current settings. Begin on a nil Assembler returns a nil
// Scope.
func (a *Assembler) Begin(ctx context.Context, call Call) *Scope {
	if a == nil {
		return nil
	}
	s := a.settings.Load()
	attr := call.attribute()
	var span trace.Span
	if a.tracer != nil {
		ctx, span = a.tracer.Start(ctx, call.Name(), trace.WithAttributes(
			attribute.String("code.namespace", call.Type),
			attribute.String("code.function", call.Method),
		))
	}
	sc := &Scope{
		a:             a,
		ctx:           ctx,
		call:          call,
		name:          call.Name(),
		attr:          attr,
		settings:      s,
		correlationID: ambient.ResolveCorrelationID(ctx),
		taskID:        ambient.TaskID(ctx),
		start:         a.now(),
		visible:       s.Visible(attr.Level),
		span:          span,
	}
	if span != nil {
		span.SetAttributes(attribute.String("tracelog.correlation_id", sc.correlationID))
	}
	if attr.TrackChanges != nil && s.TrackDataChanges {
		sc.captureBefore()
	}

	if !sc.visible || !a.admit(sc.name, attr.Level) {
		return sc
	}
	rec := sc.base(attr.Level, "Entering "+sc.name)
	if s.LogParameters && attr.IncludeParameters {
		rec.Parameters = sc.renderParams()
	}
	a.emit(ctx, rec)
	return sc
}

// End exits a call that returned result and err. The Exiting record is
// emitted under the same visibility rule as the Entering record, except that
// a non-nil err always produces an Exception record. Calls after the first
// are ignored.
func (sc *Scope) End(result any, err error) {
	sc.end(result, true, err)
}

// EndVoid exits a call that has no return value.
func (sc *Scope) EndVoid(err error) {
	sc.end(nil, false, err)
}

// Context returns the context the call should run with. It carries the
// call's span when the Assembler has a tracer.
func (sc *Scope) Context() context.Context {
	if sc == nil {
		return nil
	}
	return sc.ctx
}

// CorrelationID returns the id shared by both records of the call.
func (sc *Scope) CorrelationID() string {
	if sc == nil {
		return ""
	}
	return sc.correlationID
}

func (sc *Scope) end(result any, hasResult bool, err error) {
	if sc == nil || sc.done {
		return
	}
	sc.done = true
	a := sc.a
	elapsed := a.now().Sub(sc.start)
	failed := err != nil
	if sc.span != nil {
		if failed {
			sc.span.RecordError(err)
			sc.span.SetStatus(codes.Error, err.Error())
		}
		sc.span.End()
	}
	if a.observer != nil {
		a.observer.ObserveCall(sc.name, elapsed, failed)
	}

	level, msg := sc.attr.Level, "Exiting "+sc.name
	if failed {
		level, msg = zapcore.ErrorLevel, "Exception in "+sc.name
	} else if !sc.visible || !a.admit(sc.name, level) {
		return
	}

	s := sc.settings
	rec := sc.base(level, msg)
	if s.LogExecutionTime && sc.attr.IncludeExecutionTime {
		rec.ExecutionTime = elapsed
	}
	if failed {
		rec.Error = NewErrorInfo(err)
	} else if hasResult && s.LogReturnValues && sc.attr.IncludeReturnValue {
		v := a.renderer(s, s.ReturnItems, s.ReturnFields).Render(result)
		rec.ReturnValue = &v
	}
	if sc.tracker != nil {
		sc.attachChanges(&rec, result, hasResult && !failed)
	}
	a.emit(sc.ctx, rec)
}

// admit applies the sink's level check and the throttler to a non-error
// record.
func (a *Assembler) admit(key string, level Level) bool {
	if !a.sink.Enabled(level) {
		return false
	}
	if a.throttler != nil && !a.throttler.Allow(key) {
		return false
	}
	return true
}

func (sc *Scope) base(level Level, msg string) LogRecord {
	return LogRecord{
		Timestamp:     sc.a.now(),
		MethodName:    sc.call.Method,
		ClassName:     sc.call.Type,
		Level:         level,
		Message:       msg,
		CorrelationID: sc.correlationID,
		ThreadID:      sc.taskID,
		Context:       sc.a.renderContext(sc.settings, ambient.Snapshot(sc.ctx), nil),
	}
}

func (sc *Scope) renderParams() []rendered.Entry {
	s := sc.settings
	r := sc.a.renderer(s, s.ParameterItems, s.ParameterFields)
	out := make([]rendered.Entry, 0, len(sc.call.Params))
	for i, p := range sc.call.Params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		out = append(out, rendered.Entry{Key: name, Value: r.RenderNamed(name, p.Value, p.Directive)})
	}
	return out
}

// captureBefore snapshots the parameter marked Before so that in-place
// mutation during the call is still detected.
func (sc *Scope) captureBefore() {
	var before *Param
	for i := range sc.call.Params {
		if sc.call.Params[i].Before {
			before = &sc.call.Params[i]
			break
		}
	}
	if before == nil || before.Value == nil {
		return
	}

	s := sc.settings
	depth := s.MaxComparisonDepth
	if tc := sc.attr.TrackChanges; tc.MaxComparisonDepth > 0 {
		depth = tc.MaxComparisonDepth
	}
	r := sc.a.renderer(s, s.ReturnItems, s.ReturnFields)
	t, err := tracker.New(before.Value,
		tracker.WithOperation(sc.attr.TrackChanges.OperationType),
		tracker.WithMaxDepth(depth),
		tracker.WithRenderer(r),
		tracker.WithDirective(sc.changeDirective(before, r.Options().Policy)),
	)
	if err != nil {
		if !errors.Is(err, ErrInvalidArgument) {
			sc.a.diag.Warn(sc.ctx, "change tracking skipped",
				zap.String("method", sc.name),
				zap.Error(err))
		}
		return
	}
	sc.tracker = t
	sc.beforeType = reflect.TypeOf(before.Value)
}

// changeDirective resolves the directive governing the diff of the before
// and after parameters. The stricter of their own directives wins, then the
// name policy of the before parameter.
func (sc *Scope) changeDirective(before *Param, p *sensitivity.Policy) sensitivity.Directive {
	d := before.Directive
	for _, q := range sc.call.Params {
		if q.After && stricter(q.Directive, d) {
			d = q.Directive
		}
	}
	return sensitivity.Resolve(d, sensitivity.None(), before.Name, p)
}

func stricter(a, b sensitivity.Directive) bool {
	rank := func(d sensitivity.Directive) int {
		switch d.Kind() {
		case sensitivity.KindExclude:
			return 3
		case sensitivity.KindRedact:
			return 2
		case sensitivity.KindMask:
			return 1
		}
		return 0
	}
	return rank(a) > rank(b)
}

// attachChanges diffs the captured before object against the parameter
// marked After, or else against the return value when its type is
// assignable to the before type. Without an after candidate nothing is
// attached.
func (sc *Scope) attachChanges(rec *LogRecord, result any, resultUsable bool) {
	var after any
	found := false
	for _, p := range sc.call.Params {
		if p.After {
			after, found = p.Value, true
			break
		}
	}
	if !found && resultUsable && result != nil && reflect.TypeOf(result).AssignableTo(sc.beforeType) {
		after, found = result, true
	}
	if !found {
		return
	}

	changes, err := sc.tracker.Finalize(sc.ctx, after, rec.Level)
	if err != nil {
		sc.a.diag.Warn(sc.ctx, "change tracking failed", zap.String("method", sc.name), zap.Error(err))
		return
	}
	rec.Changes = changes
	rec.EntityType = sc.tracker.EntityType()
	rec.EntityID = sc.tracker.EntityID()
	rec.OperationType = sc.tracker.Operation()
}

// renderContext merges ambient values and extra entries, sorted by key, with
// extra entries shadowing ambient ones.
func (a *Assembler) renderContext(s *Settings, values map[string]any, extra []tracker.ContextEntry) []rendered.Entry {
	if len(values) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]any, len(values)+len(extra))
	for k, v := range values {
		merged[k] = v
	}
	for _, e := range extra {
		merged[e.Key] = e.Value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := a.renderer(s, s.ParameterItems, s.ParameterFields)
	out := make([]rendered.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, rendered.Entry{Key: k, Value: r.RenderNamed(k, merged[k], sensitivity.None())})
	}
	return out
}

// EmitChanges writes a standalone record for a finalized tracker. It
// implements tracker.Emitter. Sink failures are reported like those of any
// other record and are not returned.
func (a *Assembler) EmitChanges(ctx context.Context, b tracker.Bundle) error {
	if b.EntityType == "" {
		return fmt.Errorf("%w: bundle has no entity type", ErrInvalidArgument)
	}
	s := a.settings.Load()
	if !s.TrackDataChanges || !s.Visible(b.Level) {
		return nil
	}
	if b.Level < zapcore.ErrorLevel && !a.admit("changes:"+b.EntityType, b.Level) {
		return nil
	}
	a.emit(ctx, LogRecord{
		Timestamp:     a.now(),
		Level:         b.Level,
		Message:       "Data changes for " + b.EntityType,
		CorrelationID: ambient.ResolveCorrelationID(ctx),
		ThreadID:      ambient.TaskID(ctx),
		Changes:       b.Changes,
		EntityType:    b.EntityType,
		EntityID:      b.EntityID,
		OperationType: b.Operation,
		Context:       a.renderContext(s, ambient.Snapshot(ctx), b.Context),
	})
	return nil
}

// emit hands rec to the sink once. Errors and panics from the sink are
// reported on the diagnostic logger.
func (a *Assembler) emit(ctx context.Context, rec LogRecord) {
	defer func() {
		if p := recover(); p != nil {
			a.sinkFailed(ctx, rec, fmt.Errorf("sink panicked: %v", p))
		}
	}()
	if err := a.sink.Log(ctx, rec); err != nil {
		a.sinkFailed(ctx, rec, err)
	}
}

func (a *Assembler) sinkFailed(ctx context.Context, rec LogRecord, err error) {
	a.diag.Error(ctx, "sink write failed",
		zap.String("record_message", rec.Message),
		zap.String("record_correlation_id", rec.CorrelationID),
		zap.Error(err))
	if o, ok := a.observer.(stats.SinkFailureObserver); ok {
		o.ObserveSinkFailure()
	}
}

var _ tracker.Emitter = (*Assembler)(nil)
