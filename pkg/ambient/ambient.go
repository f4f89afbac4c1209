// Package ambient carries key/value data through a context.Context so that
// every record emitted inside a logical operation picks it up.
//
// Entries are scoped by the context they were added to: a goroutine that
// derives its own context never sees entries added by a sibling, and leaving
// a scope is simply returning to the parent context.
package ambient

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type valuesCtxKey struct{}
type correlationCtxKey struct{}
type taskCtxKey struct{}

// entry is one link of an immutable chain. Later links shadow earlier ones.
type entry struct {
	parent *entry
	key    string
	value  any
}

// With returns a context carrying key=value on top of the entries already
// in ctx. It panics on an empty key.
func With(ctx context.Context, key string, value any) context.Context {
	if key == "" {
		panic("ambient: key cannot be empty")
	}
	parent, _ := ctx.Value(valuesCtxKey{}).(*entry)
	return context.WithValue(ctx, valuesCtxKey{}, &entry{parent: parent, key: key, value: value})
}

// WithValues adds several entries at once. Keys are applied in sorted order.
func WithValues(ctx context.Context, values map[string]any) context.Context {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ctx = With(ctx, k, values[k])
	}
	return ctx
}

// Value returns the innermost value stored under key.
func Value(ctx context.Context, key string) (any, bool) {
	for e, _ := ctx.Value(valuesCtxKey{}).(*entry); e != nil; e = e.parent {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of every visible entry. The map is owned by the
// caller.
func Snapshot(ctx context.Context) map[string]any {
	e, _ := ctx.Value(valuesCtxKey{}).(*entry)
	if e == nil {
		return nil
	}
	out := make(map[string]any)
	for ; e != nil; e = e.parent {
		if _, shadowed := out[e.key]; !shadowed {
			out[e.key] = e.value
		}
	}
	return out
}

// Keys returns the visible keys in sorted order.
func Keys(ctx context.Context) []string {
	snap := Snapshot(ctx)
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// ValidID reports whether id is accepted as a correlation or task id.
func ValidID(id string) bool {
	return validateID(id, "id") == nil
}

// NewCorrelationID returns a short random identifier.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// WithCorrelationID sets the correlation id shared by records in this scope.
// Panics if id is empty or contains invalid characters.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if err := validateID(id, "correlation id"); err != nil {
		panic(fmt.Sprintf("ambient: %v", err))
	}
	return context.WithValue(ctx, correlationCtxKey{}, id)
}

// WithNewCorrelationID sets a freshly generated correlation id.
func WithNewCorrelationID(ctx context.Context) context.Context {
	return WithCorrelationID(ctx, NewCorrelationID())
}

// CorrelationID returns the correlation id set on ctx, or "".
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// ResolveCorrelationID returns the explicit correlation id, then the active
// OpenTelemetry trace id, then a new random id.
func ResolveCorrelationID(ctx context.Context) string {
	if id := CorrelationID(ctx); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return NewCorrelationID()
}

// WithTaskID names the logical task (goroutine, worker, job) running in ctx.
// Panics if id is empty or contains invalid characters.
func WithTaskID(ctx context.Context, id string) context.Context {
	if err := validateID(id, "task id"); err != nil {
		panic(fmt.Sprintf("ambient: %v", err))
	}
	return context.WithValue(ctx, taskCtxKey{}, id)
}

// WithNewTask assigns a generated task id.
func WithNewTask(ctx context.Context) context.Context {
	return WithTaskID(ctx, "task-"+uuid.New().String()[:8])
}

// TaskID returns the task id set on ctx, or "".
func TaskID(ctx context.Context) string {
	if id, ok := ctx.Value(taskCtxKey{}).(string); ok {
		return id
	}
	return ""
}
