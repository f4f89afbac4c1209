// Package tracker binds a snapshot of an entity to a later comparison.
//
// A Tracker deep-copies its snapshot when created, so later mutation of the
// live object does not affect the baseline. Finalize compares the baseline
// with the current state and hands the result to an Emitter.
//
//	t, err := tracker.New(order, tracker.WithEmitter(assembler))
//	if err != nil {
//	    return err
//	}
//	order.Status = "Shipped"
//	changes, err := t.WithContext("user", userID).Finalize(ctx, order, zapcore.InfoLevel)
package tracker

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/copystructure"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/pkg/diff"
	"github.com/fyrsmithlabs/tracelog/pkg/render"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// DefaultOperation is the operation type used when none is given.
const DefaultOperation = "Update"

// ErrInvalidArgument is returned when a required input is missing.
var ErrInvalidArgument = errors.New("invalid argument")

// Bundle is the result of a finalized comparison, ready to become a log
// record.
type Bundle struct {
	EntityType string
	EntityID   string
	Operation  string
	Level      zapcore.Level
	Changes    []diff.ChangeRecord

	// Context holds the tracker's context entries in insertion order.
	Context []ContextEntry
}

// ContextEntry is one key/value pair attached to a tracker.
type ContextEntry struct {
	Key   string
	Value any
}

// Emitter receives finalized bundles.
type Emitter interface {
	EmitChanges(ctx context.Context, b Bundle) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEntityID sets the entity identifier. Without it the identifier is
// derived from the snapshot.
func WithEntityID(id string) Option {
	return func(t *Tracker) { t.entityID = id }
}

// WithOperation sets the operation type, "Update" by default.
func WithOperation(op string) Option {
	return func(t *Tracker) {
		if op != "" {
			t.operation = op
		}
	}
}

// WithMaxDepth sets the comparison depth.
func WithMaxDepth(depth int) Option {
	return func(t *Tracker) { t.maxDepth = depth }
}

// WithRenderer sets the renderer used for changed values.
func WithRenderer(r *render.Renderer) Option {
	return func(t *Tracker) { t.renderer = r }
}

// WithDirective sets the sensitivity directive of the tracked value as a
// whole.
func WithDirective(d sensitivity.Directive) Option {
	return func(t *Tracker) { t.directive = d }
}

// WithEmitter sets where finalized bundles are sent.
func WithEmitter(e Emitter) Option {
	return func(t *Tracker) { t.emitter = e }
}

// Tracker holds a baseline snapshot. It is not safe for concurrent use.
type Tracker struct {
	snapshot   any
	entityType string
	entityID   string
	operation  string
	maxDepth   int
	renderer   *render.Renderer
	directive  sensitivity.Directive
	emitter    Emitter
	context    []ContextEntry
}

// New captures a deep copy of snapshot. A nil snapshot, or a nil pointer,
// returns ErrInvalidArgument.
func New(snapshot any, opts ...Option) (*Tracker, error) {
	if isNil(snapshot) {
		return nil, fmt.Errorf("%w: snapshot is nil", ErrInvalidArgument)
	}
	cp, err := capture(snapshot)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		snapshot:   cp,
		entityType: EntityTypeOf(snapshot),
		operation:  DefaultOperation,
		maxDepth:   diff.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.entityID == "" {
		t.entityID = EntityIDOf(snapshot)
	}
	return t, nil
}

// WithContext attaches a context entry and returns t for chaining. It panics
// on an empty key; use SetContext to get an error instead.
func (t *Tracker) WithContext(key string, value any) *Tracker {
	if err := t.SetContext(key, value); err != nil {
		panic(err)
	}
	return t
}

// SetContext attaches a context entry, replacing an existing entry with the
// same key.
func (t *Tracker) SetContext(key string, value any) error {
	if key == "" {
		return fmt.Errorf("%w: context key is empty", ErrInvalidArgument)
	}
	for i := range t.context {
		if t.context[i].Key == key {
			t.context[i].Value = value
			return nil
		}
	}
	t.context = append(t.context, ContextEntry{Key: key, Value: value})
	return nil
}

// EntityType returns the snapshot's type name.
func (t *Tracker) EntityType() string { return t.entityType }

// EntityID returns the entity identifier.
func (t *Tracker) EntityID() string { return t.entityID }

// Operation returns the operation type.
func (t *Tracker) Operation() string { return t.operation }

// Snapshot returns the captured baseline.
func (t *Tracker) Snapshot() any { return t.snapshot }

// Finalize compares the baseline with current and emits the resulting bundle
// when an emitter is set. Each call compares against the original baseline.
// The change list is returned even when the emitter fails.
func (t *Tracker) Finalize(ctx context.Context, current any, level zapcore.Level) ([]diff.ChangeRecord, error) {
	opts := []diff.Option{diff.WithMaxDepth(t.maxDepth), diff.WithDirective(t.directive)}
	if t.renderer != nil {
		opts = append(opts, diff.WithRenderer(t.renderer))
	}
	changes := diff.Compare(t.snapshot, current, opts...)

	if t.emitter == nil {
		return changes, nil
	}
	b := Bundle{
		EntityType: t.entityType,
		EntityID:   t.entityID,
		Operation:  t.operation,
		Level:      level,
		Changes:    changes,
		Context:    append([]ContextEntry(nil), t.context...),
	}
	if err := t.emitter.EmitChanges(ctx, b); err != nil {
		return changes, fmt.Errorf("emitting changes: %w", err)
	}
	return changes, nil
}

// EntityTypeOf returns the type name of v with pointers removed.
func EntityTypeOf(v any) string {
	if v == nil {
		return ""
	}
	return render.TypeName(reflect.TypeOf(v))
}

// Identifiable is implemented by entities that know their own identifier.
type Identifiable interface {
	EntityID() string
}

// EntityIDOf derives an identifier from v: the EntityID method when present,
// otherwise an exported field named ID or Id.
func EntityIDOf(v any) string {
	if v == nil {
		return ""
	}
	if e, ok := v.(Identifiable); ok {
		return e.EntityID()
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return ""
	}
	for _, name := range []string{"ID", "Id"} {
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInterface() && !f.IsZero() {
			return fmt.Sprint(f.Interface())
		}
	}
	return ""
}

// Snapshotter is implemented by entities whose state cannot be deep-copied
// through exported fields. Snapshot must return an independent copy.
type Snapshotter interface {
	Snapshot() any
}

func capture(v any) (any, error) {
	if s, ok := v.(Snapshotter); ok {
		return s.Snapshot(), nil
	}
	cp, err := copystructure.Copy(v)
	if err != nil {
		return nil, fmt.Errorf("copying snapshot: %w", err)
	}
	return cp, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
