// Package record assembles the log records emitted for instrumented calls.
//
// An Assembler turns a Call into two records: an Entering record when the
// call starts and an Exiting (or Exception) record when it ends. Parameters,
// return values and ambient context pass through the value renderer, so
// sensitivity directives and size limits always apply. When change tracking
// is enabled for a call, the Exiting record also carries the structural
// diff between the call's before and after objects.
//
//	order, err := record.Invoke(ctx, asm, record.Call{
//	    Type:   "OrderService",
//	    Method: "Ship",
//	    Params: []record.Param{{Name: "order", Value: order, Before: true}},
//	    Attr:   &record.Attribute{Level: zapcore.InfoLevel, TrackChanges: &record.TrackChanges{}},
//	}, func(ctx context.Context) (*Order, error) {
//	    return svc.Ship(ctx, order)
//	})
package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/pkg/diff"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
)

// Level is the severity of a record.
type Level = zapcore.Level

// TraceLevel sits below Debug. Trace calls are only visible in development.
const TraceLevel = logging.TraceLevel

// TimestampFormat is the layout of the timestamp field in both wire forms.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Sink receives finished records. Log is called at most once per record and
// is never retried. Enabled lets the assembler skip rendering work; sinks
// may still filter on their own.
type Sink interface {
	Log(ctx context.Context, rec LogRecord) error
	Enabled(level Level) bool
}

// ErrorInfo describes the error an instrumented call ended with.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorInfo describes err, or returns nil when err is nil.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	if p, ok := err.(*PanicError); ok {
		return &ErrorInfo{Type: "panic", Message: fmt.Sprint(p.Value)}
	}
	return &ErrorInfo{Type: fmt.Sprintf("%T", err), Message: err.Error()}
}

// LogRecord is one emitted event. The JSON field names are stable.
type LogRecord struct {
	Timestamp  time.Time
	MethodName string
	ClassName  string
	Level      Level
	Message    string

	// Parameters holds the rendered arguments in declaration order.
	Parameters []rendered.Entry

	// ReturnValue is nil when no return value was recorded, which is
	// different from a recorded nil.
	ReturnValue *rendered.Value

	// ExecutionTime is zero when timing was not recorded.
	ExecutionTime time.Duration

	Error         *ErrorInfo
	CorrelationID string
	ThreadID      string

	Changes       []diff.ChangeRecord
	EntityType    string
	EntityID      string
	OperationType string

	// Context holds ambient and tracker context, sorted by key.
	Context []rendered.Entry
}

type wireRecord struct {
	Timestamp     string              `json:"timestamp"`
	MethodName    string              `json:"method_name,omitempty"`
	ClassName     string              `json:"class_name,omitempty"`
	Level         string              `json:"level"`
	Parameters    *rendered.Value     `json:"parameters,omitempty"`
	ReturnValue   *rendered.Value     `json:"return_value,omitempty"`
	ExecutionTime string              `json:"execution_time,omitempty"`
	Error         *ErrorInfo          `json:"error,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	ThreadID      string              `json:"thread_id,omitempty"`
	Message       string              `json:"message"`
	Changes       []diff.ChangeRecord `json:"changes,omitempty"`
	EntityType    string              `json:"entity_type,omitempty"`
	EntityID      string              `json:"entity_id,omitempty"`
	OperationType string              `json:"operation_type,omitempty"`
	Context       *rendered.Value     `json:"context,omitempty"`
}

// MarshalJSON encodes the record with its stable field names. Parameters and
// context keep their order.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		Timestamp:     r.Timestamp.UTC().Format(TimestampFormat),
		MethodName:    r.MethodName,
		ClassName:     r.ClassName,
		Level:         logging.LevelName(r.Level),
		ReturnValue:   r.ReturnValue,
		Error:         r.Error,
		CorrelationID: r.CorrelationID,
		ThreadID:      r.ThreadID,
		Message:       r.Message,
		Changes:       r.Changes,
		EntityType:    r.EntityType,
		EntityID:      r.EntityID,
		OperationType: r.OperationType,
	}
	if r.Parameters != nil {
		v := rendered.Mapping(r.Parameters, len(r.Parameters))
		w.Parameters = &v
	}
	if r.ExecutionTime > 0 {
		w.ExecutionTime = r.ExecutionTime.String()
	}
	if len(r.Context) > 0 {
		v := rendered.Mapping(r.Context, len(r.Context))
		w.Context = &v
	}
	return json.Marshal(w)
}

// Text renders the record in a multi-line human readable form.
func (r LogRecord) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s",
		r.Timestamp.UTC().Format(TimestampFormat),
		strings.ToUpper(logging.LevelName(r.Level)),
		r.Message)

	var ids []string
	if r.CorrelationID != "" {
		ids = append(ids, "correlation_id="+r.CorrelationID)
	}
	if r.ThreadID != "" {
		ids = append(ids, "thread_id="+r.ThreadID)
	}
	if len(ids) > 0 {
		b.WriteString(" (" + strings.Join(ids, ", ") + ")")
	}
	b.WriteByte('\n')

	if r.Parameters != nil {
		writeLine(&b, "parameters", rendered.Mapping(r.Parameters, len(r.Parameters)).String())
	}
	if r.ReturnValue != nil {
		writeLine(&b, "return_value", r.ReturnValue.String())
	}
	if r.ExecutionTime > 0 {
		writeLine(&b, "execution_time", r.ExecutionTime.String())
	}
	if r.Error != nil {
		writeLine(&b, "error", r.Error.Type+": "+r.Error.Message)
	}
	if r.EntityType != "" {
		entity := r.EntityType
		if r.EntityID != "" {
			entity += "#" + r.EntityID
		}
		if r.OperationType != "" {
			entity += " (" + r.OperationType + ")"
		}
		writeLine(&b, "entity", entity)
	}
	if len(r.Changes) > 0 {
		b.WriteString("  changes:\n")
		for _, c := range r.Changes {
			b.WriteString("    " + c.String() + "\n")
		}
	}
	if len(r.Context) > 0 {
		writeLine(&b, "context", rendered.Mapping(r.Context, len(r.Context)).String())
	}
	return b.String()
}

func writeLine(b *strings.Builder, key, value string) {
	b.WriteString("  " + key + ": " + value + "\n")
}

// PanicError carries a recovered panic value while the Exiting record is
// written. The original value is re-raised afterwards.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
