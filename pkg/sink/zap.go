package sink

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/pkg/diff"
	"github.com/fyrsmithlabs/tracelog/pkg/record"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
)

// ZapSink writes records as zap entries. The record's message becomes the
// entry message, its timestamp the entry time and its other fields zap
// fields named as in the JSON form.
type ZapSink struct {
	z *zap.Logger
}

// Zap returns a sink writing through z. A nil logger discards records.
func Zap(z *zap.Logger) *ZapSink {
	if z == nil {
		z = zap.NewNop()
	}
	return &ZapSink{z: z}
}

// FromLogger returns a sink writing through a tracelog logger, so records
// share its encoding, redaction, sampling and OpenTelemetry export.
func FromLogger(l *logging.Logger) *ZapSink {
	if l == nil {
		return Zap(nil)
	}
	return Zap(l.Underlying())
}

// Log writes rec. Fields are added only when set.
func (s *ZapSink) Log(_ context.Context, rec record.LogRecord) error {
	ce := s.z.Check(rec.Level, rec.Message)
	if ce == nil {
		return nil
	}
	if !rec.Timestamp.IsZero() {
		ce.Time = rec.Timestamp
	}
	ce.Write(Fields(rec)...)
	return nil
}

// Enabled implements record.Sink.
func (s *ZapSink) Enabled(level record.Level) bool {
	return s.z.Core().Enabled(level)
}

// Sync flushes the underlying logger.
func (s *ZapSink) Sync() error {
	return s.z.Sync()
}

// Fields converts rec, without its message, level and timestamp, into zap
// fields.
func Fields(rec record.LogRecord) []zap.Field {
	fields := make([]zap.Field, 0, 16)
	addString := func(key, v string) {
		if v != "" {
			fields = append(fields, zap.String(key, v))
		}
	}
	addString("method_name", rec.MethodName)
	addString("class_name", rec.ClassName)
	if rec.Parameters != nil {
		fields = append(fields, rendered.Field("parameters", rendered.Mapping(rec.Parameters, len(rec.Parameters))))
	}
	if rec.ReturnValue != nil {
		fields = append(fields, rendered.Field("return_value", *rec.ReturnValue))
	}
	if rec.ExecutionTime > 0 {
		fields = append(fields, zap.String("execution_time", rec.ExecutionTime.String()))
	}
	if rec.Error != nil {
		fields = append(fields, zap.Object("error", errorInfo(*rec.Error)))
	}
	addString("correlation_id", rec.CorrelationID)
	addString("thread_id", rec.ThreadID)
	if len(rec.Changes) > 0 {
		fields = append(fields, zap.Array("changes", changeList(rec.Changes)))
	}
	addString("entity_type", rec.EntityType)
	addString("entity_id", rec.EntityID)
	addString("operation_type", rec.OperationType)
	if len(rec.Context) > 0 {
		fields = append(fields, rendered.Field("context", rendered.Mapping(rec.Context, len(rec.Context))))
	}
	return fields
}

type errorInfo record.ErrorInfo

func (e errorInfo) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", e.Type)
	enc.AddString("message", e.Message)
	return nil
}

type changeList []diff.ChangeRecord

func (l changeList) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, c := range l {
		if err := enc.AppendObject(change(c)); err != nil {
			return err
		}
	}
	return nil
}

type change diff.ChangeRecord

func (c change) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("path", c.Path)
	if err := addRendered(enc, "old_value", c.OldValue); err != nil {
		return err
	}
	if err := addRendered(enc, "new_value", c.NewValue); err != nil {
		return err
	}
	enc.AddString("value_type", c.ValueType)
	return nil
}

func addRendered(enc zapcore.ObjectEncoder, key string, v rendered.Value) error {
	switch v.Kind() {
	case rendered.KindSequence:
		return enc.AddArray(key, v)
	case rendered.KindMapping:
		return enc.AddObject(key, v)
	default:
		enc.AddString(key, v.String())
		return nil
	}
}

var _ record.Sink = (*ZapSink)(nil)
