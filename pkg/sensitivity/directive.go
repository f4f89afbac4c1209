// Package sensitivity describes how sensitive values are hidden in log output.
//
// A Directive is attached to a parameter, a struct field or a field name. The
// renderer consults it before looking at a value's contents, so a hidden value
// is never rendered structurally.
package sensitivity

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
)

// Defaults for the masking and redaction directives.
const (
	DefaultMaskPattern = "***"
	DefaultRedaction   = rendered.RedactedText
)

// Kind is the variant of a Directive.
type Kind uint8

const (
	KindNone Kind = iota
	KindExclude
	KindMask
	KindRedact
)

// String returns the tag spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindExclude:
		return "exclude"
	case KindMask:
		return "mask"
	case KindRedact:
		return "redact"
	default:
		return "none"
	}
}

// Directive is an immutable sensitivity instruction. The zero value applies
// no treatment.
type Directive struct {
	kind        Kind
	pattern     string
	first       int
	last        int
	hasFirst    bool
	hasLast     bool
	replacement string
}

// MaskOption configures a mask directive.
type MaskOption func(*Directive)

// ShowFirst keeps the first n characters of the masked text.
func ShowFirst(n int) MaskOption {
	return func(d *Directive) {
		if n >= 0 {
			d.first, d.hasFirst = n, true
		}
	}
}

// ShowLast keeps the last n characters of the masked text.
func ShowLast(n int) MaskOption {
	return func(d *Directive) {
		if n >= 0 {
			d.last, d.hasLast = n, true
		}
	}
}

// Pattern replaces the default "***" mask.
func Pattern(p string) MaskOption {
	return func(d *Directive) { d.pattern = p }
}

// None returns the directive that leaves values untouched.
func None() Directive { return Directive{} }

// Exclude returns a directive that replaces the value with the excluded
// placeholder.
func Exclude() Directive { return Directive{kind: KindExclude} }

// Mask returns a directive that hides the middle of the value's text form.
func Mask(opts ...MaskOption) Directive {
	d := Directive{kind: KindMask, pattern: DefaultMaskPattern}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Redact returns a directive that replaces the value with text. An empty
// text selects "[REDACTED]".
func Redact(text string) Directive {
	if text == "" {
		text = DefaultRedaction
	}
	return Directive{kind: KindRedact, replacement: text}
}

// Kind reports the directive variant.
func (d Directive) Kind() Kind { return d.kind }

// IsNone reports whether the directive applies no treatment.
func (d Directive) IsNone() bool { return d.kind == KindNone }

// Replacement returns the redaction text.
func (d Directive) Replacement() string { return d.replacement }

// MaskPattern returns the mask text inserted in place of hidden characters.
func (d Directive) MaskPattern() string { return d.pattern }

// String returns the directive in struct tag syntax.
func (d Directive) String() string {
	switch d.kind {
	case KindMask:
		parts := []string{"mask"}
		if d.hasFirst {
			parts = append(parts, fmt.Sprintf("first=%d", d.first))
		}
		if d.hasLast {
			parts = append(parts, fmt.Sprintf("last=%d", d.last))
		}
		if d.pattern != DefaultMaskPattern {
			parts = append(parts, "pattern="+d.pattern)
		}
		return strings.Join(parts, ",")
	case KindRedact:
		if d.replacement == DefaultRedaction {
			return "redact"
		}
		return "redact=" + d.replacement
	default:
		return d.kind.String()
	}
}

// MaskText applies the mask to s. Characters are counted as runes.
func (d Directive) MaskText(s string) string {
	r := []rune(s)
	var b strings.Builder
	if d.hasFirst && len(r) > d.first {
		b.WriteString(string(r[:d.first]))
	}
	b.WriteString(d.pattern)
	if d.hasLast && len(r) > d.last {
		b.WriteString(string(r[len(r)-d.last:]))
	}
	return b.String()
}

// Apply renders value under the directive. The boolean is false for the none
// directive, in which case the caller renders the value itself. A Secret is
// only ever excluded or redacted.
func (d Directive) Apply(value any) (rendered.Value, bool) {
	switch d.kind {
	case KindExclude:
		return rendered.Excluded(), true
	}
	if d.kind != KindNone && isSecret(value) {
		return rendered.Redacted(), true
	}
	switch d.kind {
	case KindRedact:
		return rendered.Scalar(d.replacement), true
	case KindMask:
		s, ok := TextOf(value)
		if !ok {
			return rendered.Null(), true
		}
		return rendered.Scalar(d.MaskText(s)), true
	default:
		return rendered.Value{}, false
	}
}

func isSecret(value any) bool {
	switch v := value.(type) {
	case Secret:
		return true
	case *Secret:
		return v != nil
	}
	return false
}

// TextOf returns the plain text form of value used for masking. Pointers are
// followed. It reports false for nil.
func TextOf(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	switch v := rv.Interface().(type) {
	case Secret:
		return string(v), true
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	case error:
		return v.Error(), true
	}
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return fmt.Sprint(rv.Interface()), true
}

// Resolve picks the directive that governs a value. A parameter-level
// directive wins over a field-level one, which wins over the name policy.
func Resolve(param, field Directive, name string, p *Policy) Directive {
	if !param.IsNone() {
		return param
	}
	if !field.IsNone() {
		return field
	}
	if p != nil {
		return p.Directive(name)
	}
	return None()
}
