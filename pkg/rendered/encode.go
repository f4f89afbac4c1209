package rendered

import (
	"bytes"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MarshalJSON encodes scalars and placeholders as strings, sequences as
// arrays and mappings as objects with their entry order preserved.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindMapping:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, e.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := e.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return writeJSONString(buf, v.String())
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// Field returns a zap field carrying v: scalars become string fields,
// sequences arrays and mappings nested objects.
func Field(key string, v Value) zap.Field {
	switch v.kind {
	case KindSequence:
		return zap.Array(key, v)
	case KindMapping:
		return zap.Object(key, v)
	default:
		return zap.String(key, v.String())
	}
}

// MarshalLogObject implements zapcore.ObjectMarshaler for mappings.
func (v Value) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, e := range v.entries {
		if err := addToObject(enc, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// MarshalLogArray implements zapcore.ArrayMarshaler for sequences.
func (v Value) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, item := range v.items {
		var err error
		switch item.kind {
		case KindSequence:
			err = enc.AppendArray(item)
		case KindMapping:
			err = enc.AppendObject(item)
		default:
			enc.AppendString(item.String())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func addToObject(enc zapcore.ObjectEncoder, key string, v Value) error {
	switch v.kind {
	case KindSequence:
		return enc.AddArray(key, v)
	case KindMapping:
		return enc.AddObject(key, v)
	default:
		enc.AddString(key, v.String())
		return nil
	}
}
