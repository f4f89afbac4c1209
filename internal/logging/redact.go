package logging

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// maxPatternLen bounds user-supplied redaction patterns.
const maxPatternLen = 1000

func lengthMarker(n int) string {
	return fmt.Sprintf("[REDACTED:%d]", n)
}

// Secret logs a sensitivity.Secret as a marker carrying only its length.
func Secret(key string, val sensitivity.Secret) zap.Field {
	return zap.String(key, lengthMarker(len(val.Value())))
}

// RedactedString logs a plain string the same way as Secret.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, lengthMarker(len(val)))
}

// redactor holds the compiled rules shared by an encoder and its clones.
type redactor struct {
	policy      *sensitivity.Policy
	replacement string
	patterns    []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	policy := sensitivity.NewPolicy(cfg.Fields...).WithReplacement(cfg.Replacement)
	return &redactor{
		policy:      policy,
		replacement: policy.Replacement(),
		patterns:    patterns,
	}, nil
}

func compilePatterns(exprs []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		if len(expr) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLen, expr)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// mask replaces every pattern match inside s, leaving the rest readable.
func (r *redactor) mask(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, r.replacement)
	}
	return s
}

// redactingEncoder hides fields whose key the policy marks sensitive and
// masks pattern matches in string values and entry messages.
type redactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

// newRedactingEncoder wraps base. With redaction disabled base is returned
// unchanged.
func newRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (zapcore.Encoder, error) {
	r, err := newRedactor(cfg)
	if err != nil || r == nil {
		return base, err
	}
	return &redactingEncoder{Encoder: base, r: r}, nil
}

func (e *redactingEncoder) hidden(key string) bool {
	if !e.r.policy.Matches(key) {
		return false
	}
	e.Encoder.AddString(key, e.r.replacement)
	return true
}

func (e *redactingEncoder) AddString(key, val string) {
	if !e.hidden(key) {
		e.Encoder.AddString(key, e.r.mask(val))
	}
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if !e.hidden(key) {
		e.Encoder.AddString(key, e.r.mask(string(val)))
	}
}

func (e *redactingEncoder) AddBinary(key string, val []byte) {
	if !e.hidden(key) {
		e.Encoder.AddBinary(key, val)
	}
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.hidden(key) {
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.hidden(key) {
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.hidden(key) {
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}

// EncodeEntry adds the entry's fields through the redacting methods; the
// wrapped encoder would otherwise write them to its own clone unfiltered.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.r.mask(ent.Message)
	clone := e.Clone().(*redactingEncoder)
	for _, f := range fields {
		f.AddTo(clone)
	}
	return clone.Encoder.EncodeEntry(ent, nil)
}
