// Package rendered defines the bounded, serializable representation of a
// value produced for a log record.
//
// A Value is a small tagged union. Renderers build it, sinks consume it, and
// nothing in it refers back to the live object it was rendered from.
package rendered

import (
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindScalar is a primitive rendered to text.
	KindScalar Kind = iota
	// KindSequence is an ordered, possibly truncated, list of items.
	KindSequence
	// KindMapping is an ordered, possibly truncated, list of entries.
	KindMapping
	// KindExcluded marks a value hidden by an exclude directive.
	KindExcluded
	// KindRedacted marks a value hidden because it is a secret.
	KindRedacted
	// KindError marks a value that could not be read.
	KindError
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindExcluded:
		return "excluded"
	case KindRedacted:
		return "redacted"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Placeholder texts used for the non-data variants.
const (
	ExcludedText = "[EXCLUDED]"
	RedactedText = "[REDACTED]"
	NullText     = "null"
	MoreKey      = "..."
)

// Value is a rendered value. The zero Value is an empty scalar.
type Value struct {
	kind Kind
	text string

	items   []Value
	entries []Entry

	count      int
	countKnown bool
	truncated  bool
}

// Entry is one key/value pair of a mapping.
type Entry struct {
	Key   string
	Value Value
}

// Scalar returns a scalar holding text.
func Scalar(text string) Value {
	return Value{kind: KindScalar, text: text}
}

// Null returns the scalar used for absent values.
func Null() Value {
	return Scalar(NullText)
}

// Excluded returns the excluded placeholder.
func Excluded() Value {
	return Value{kind: KindExcluded}
}

// Redacted returns the secret placeholder.
func Redacted() Value {
	return Value{kind: KindRedacted}
}

// Error returns a value standing in for something that could not be read.
func Error(reason string) Value {
	return Value{kind: KindError, text: reason}
}

// Sequence returns a sequence of sampled items taken from a collection of
// total elements. A truncation marker is appended when total exceeds the
// number of sampled items.
func Sequence(items []Value, total int) Value {
	v := Value{kind: KindSequence, items: items, count: total, countKnown: true}
	if total > len(items) {
		v.truncated = true
		v.items = append(v.items, Scalar("... ("+strconv.Itoa(total-len(items))+" more)"))
	}
	return v
}

// PartialSequence returns a sequence whose total size is unknown. When more
// is true the source had elements beyond the sampled items.
func PartialSequence(items []Value, more bool) Value {
	if !more {
		return Sequence(items, len(items))
	}
	v := Value{kind: KindSequence, items: items, count: len(items), truncated: true}
	v.items = append(v.items, Scalar("... (more)"))
	return v
}

// Mapping returns a mapping of sampled entries taken from a collection of
// total entries. A marker entry is appended when total exceeds the number of
// sampled entries.
func Mapping(entries []Entry, total int) Value {
	v := Value{kind: KindMapping, entries: entries, count: total, countKnown: true}
	if total > len(entries) {
		v.truncated = true
		v.entries = append(v.entries, Entry{
			Key:   MoreKey,
			Value: Scalar("(" + strconv.Itoa(total-len(entries)) + " more)"),
		})
	}
	return v
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// Text returns the scalar text or error reason. It is empty for containers.
func (v Value) Text() string { return v.text }

// Items returns every item of a sequence, including a trailing truncation
// marker when present.
func (v Value) Items() []Value { return v.items }

// Entries returns every entry of a mapping, including a trailing marker entry
// when present.
func (v Value) Entries() []Entry { return v.entries }

// Sampled returns the sequence items without the truncation marker.
func (v Value) Sampled() []Value {
	if v.truncated && len(v.items) > 0 {
		return v.items[:len(v.items)-1]
	}
	return v.items
}

// SampledEntries returns the mapping entries without the marker entry.
func (v Value) SampledEntries() []Entry {
	if v.truncated && len(v.entries) > 0 {
		return v.entries[:len(v.entries)-1]
	}
	return v.entries
}

// Lookup returns the entry value for key in a mapping.
func (v Value) Lookup(key string) (Value, bool) {
	for _, e := range v.SampledEntries() {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Count returns the number of elements in the source collection. When
// CountKnown is false it is a lower bound.
func (v Value) Count() int { return v.count }

// CountKnown reports whether Count is exact.
func (v Value) CountKnown() bool { return v.countKnown }

// Truncated reports whether the container holds fewer elements than its
// source.
func (v Value) Truncated() bool { return v.truncated }

// CountLabel formats the element count, adding "+" when it is a lower bound.
func (v Value) CountLabel() string {
	s := strconv.Itoa(v.count)
	if !v.countKnown {
		s += "+"
	}
	return s
}

// IsNull reports whether v is the null scalar.
func (v Value) IsNull() bool {
	return v.kind == KindScalar && v.text == NullText
}

// String returns a compact single-line rendering.
func (v Value) String() string {
	var b strings.Builder
	v.writeText(&b)
	return b.String()
}

func (v Value) writeText(b *strings.Builder) {
	switch v.kind {
	case KindScalar, KindError:
		b.WriteString(v.text)
	case KindExcluded:
		b.WriteString(ExcludedText)
	case KindRedacted:
		b.WriteString(RedactedText)
	case KindSequence:
		b.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				b.WriteString(", ")
			}
			item.writeText(b)
		}
		b.WriteByte(']')
	case KindMapping:
		b.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.Key)
			b.WriteString(": ")
			e.Value.writeText(b)
		}
		b.WriteByte('}')
	}
}

// Equal reports whether two values are structurally identical.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.text != o.text || v.count != o.count ||
		v.countKnown != o.countKnown || v.truncated != o.truncated ||
		len(v.items) != len(o.items) || len(v.entries) != len(o.entries) {
		return false
	}
	for i := range v.items {
		if !v.items[i].Equal(o.items[i]) {
			return false
		}
	}
	for i := range v.entries {
		if v.entries[i].Key != o.entries[i].Key || !v.entries[i].Value.Equal(o.entries[i].Value) {
			return false
		}
	}
	return true
}
