// Package render converts arbitrary Go values into bounded rendered.Value
// trees suitable for log records.
//
// Rendering never fails. Sensitivity directives are applied before a value
// is inspected, nesting stops at MaxDepth, collections are sampled down to
// MaxItems and large structs collapse to a placeholder carrying their type
// name and field count. A field whose read panics renders as an error
// placeholder without aborting the rest of the value.
package render

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// ReadErrorText is the placeholder for values that could not be read.
const ReadErrorText = "<error reading value>"

// Defaults applied to zero Options fields.
const (
	DefaultMaxDepth        = 3
	DefaultMaxItems        = 10
	DefaultMaxStringLength = 10000
	DefaultMaxFields       = 5

	ParameterMaxItems  = 5
	ParameterMaxFields = 3
	ReturnMaxItems     = 10
	ReturnMaxFields    = 5
)

// Scrubber rewrites string content before it is rendered. It is used to
// remove secrets embedded in free text.
type Scrubber interface {
	ScrubString(s string) string
}

// Options bound the work done by a Renderer.
type Options struct {
	// MaxDepth is the nesting depth at which containers and objects become
	// placeholders. The top-level value is at depth 0.
	MaxDepth int

	// MaxItems caps sampled collection elements.
	MaxItems int

	// MaxStringLength caps string length in characters.
	MaxStringLength int

	// MaxFields is the largest struct rendered field by field.
	MaxFields int

	// Policy redacts fields and map entries with sensitive names.
	Policy *sensitivity.Policy

	// Scrubber, when set, is applied to every rendered string.
	Scrubber Scrubber
}

// DefaultOptions returns general purpose limits.
func DefaultOptions() Options {
	return Options{
		MaxDepth:        DefaultMaxDepth,
		MaxItems:        DefaultMaxItems,
		MaxStringLength: DefaultMaxStringLength,
		MaxFields:       DefaultMaxFields,
		Policy:          sensitivity.DefaultPolicy(),
	}
}

// ParameterOptions returns the limits used for method parameters.
func ParameterOptions() Options {
	o := DefaultOptions()
	o.MaxItems = ParameterMaxItems
	o.MaxFields = ParameterMaxFields
	return o
}

// ReturnOptions returns the limits used for return values.
func ReturnOptions() Options {
	o := DefaultOptions()
	o.MaxItems = ReturnMaxItems
	o.MaxFields = ReturnMaxFields
	return o
}

// Renderer renders values under fixed Options. It holds no mutable state and
// is safe for concurrent use.
type Renderer struct {
	opts Options
}

// New returns a Renderer. Zero or negative limits take their defaults, except
// MaxDepth where zero is honoured only through WithDepth.
func New(opts Options) *Renderer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.MaxStringLength <= 0 {
		opts.MaxStringLength = DefaultMaxStringLength
	}
	if opts.MaxFields <= 0 {
		opts.MaxFields = DefaultMaxFields
	}
	return &Renderer{opts: opts}
}

// WithDepth returns a copy of r that stops at depth. A depth of zero renders
// every container as a placeholder.
func (r *Renderer) WithDepth(depth int) *Renderer {
	cp := *r
	if depth < 0 {
		depth = 0
	}
	cp.opts.MaxDepth = depth
	return &cp
}

// Options returns the effective limits.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render renders v with no directive.
func (r *Renderer) Render(v any) rendered.Value {
	return r.RenderWith(v, sensitivity.None())
}

// RenderNamed renders a named value such as a parameter. The directive, when
// not None, takes precedence over the name policy.
func (r *Renderer) RenderNamed(name string, v any, d sensitivity.Directive) rendered.Value {
	return r.RenderWith(v, sensitivity.Resolve(d, sensitivity.None(), name, r.opts.Policy))
}

// RenderWith renders v under directive d.
func (r *Renderer) RenderWith(v any, d sensitivity.Directive) (out rendered.Value) {
	defer func() {
		if p := recover(); p != nil {
			out = rendered.Error(ReadErrorText)
		}
	}()
	if hidden, ok := d.Apply(v); ok {
		return hidden
	}
	st := &state{visiting: make(map[visit]bool)}
	return r.render(reflect.ValueOf(v), 0, st)
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

type state struct {
	visiting map[visit]bool
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	secretType   = reflect.TypeOf(sensitivity.Secret(""))
	bytesType    = reflect.TypeOf([]byte(nil))
)

func (r *Renderer) render(rv reflect.Value, depth int, st *state) rendered.Value {
	if !rv.IsValid() {
		return rendered.Null()
	}

	for rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return rendered.Null()
		}
		rv = rv.Elem()
	}

	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return rendered.Null()
		}
		if text, ok := textForm(rv); ok {
			return rendered.Scalar(r.clip(text))
		}
		if !IsInspectable(rv) {
			key := visit{ptr: rv.Pointer(), typ: rv.Type()}
			if st.visiting[key] {
				return rendered.Scalar("<" + TypeName(rv.Type()) + "> (circular reference)")
			}
			st.visiting[key] = true
			defer delete(st.visiting, key)
			return r.render(rv.Elem(), depth, st)
		}
	}

	if rv.Type() == secretType {
		return rendered.Redacted()
	}

	if s, ok := r.scalar(rv); ok {
		return s
	}

	if depth >= r.opts.MaxDepth {
		return rendered.Scalar("<" + TypeName(rv.Type()) + "> (max depth reached)")
	}

	if IsInspectable(rv) {
		return r.object(rv, depth, st)
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rendered.Null()
		}
		key := visit{ptr: rv.Pointer(), typ: rv.Type()}
		if st.visiting[key] {
			return rendered.Scalar("<" + TypeName(rv.Type()) + "> (circular reference)")
		}
		st.visiting[key] = true
		defer delete(st.visiting, key)
		return r.mapping(rv, depth, st)
	case reflect.Slice:
		if rv.IsNil() {
			return rendered.Null()
		}
		return r.sequence(rv, depth, st)
	case reflect.Array:
		return r.sequence(rv, depth, st)
	case reflect.Func:
		if rv.IsNil() {
			return rendered.Null()
		}
		if isSeq(rv.Type()) {
			return r.lazySequence(rv, depth, st)
		}
	case reflect.Struct:
		return r.object(rv, depth, st)
	}

	return r.fallback(rv)
}

// scalar handles strings, primitives, enums and date-like values.
func (r *Renderer) scalar(rv reflect.Value) (rendered.Value, bool) {
	t := rv.Type()
	switch t {
	case timeType:
		return rendered.Scalar(rv.Interface().(time.Time).Format(time.RFC3339Nano)), true
	case durationType:
		return rendered.Scalar(time.Duration(rv.Int()).String()), true
	case bytesType:
		if rv.IsNil() {
			return rendered.Null(), true
		}
		return rendered.Scalar("<" + strconv.Itoa(rv.Len()) + " bytes>"), true
	}

	switch rv.Kind() {
	case reflect.String:
		if stringer, ok := enumStringer(rv); ok {
			return rendered.Scalar(r.truncate(stringer)), true
		}
		return rendered.Scalar(r.clip(rv.String())), true
	case reflect.Bool:
		return rendered.Scalar(strconv.FormatBool(rv.Bool())), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if name, ok := enumStringer(rv); ok {
			return rendered.Scalar(TypeName(t) + "." + name), true
		}
		return rendered.Scalar(strconv.FormatInt(rv.Int(), 10)), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if name, ok := enumStringer(rv); ok {
			return rendered.Scalar(TypeName(t) + "." + name), true
		}
		return rendered.Scalar(strconv.FormatUint(rv.Uint(), 10)), true
	case reflect.Float32:
		return rendered.Scalar(strconv.FormatFloat(rv.Float(), 'g', -1, 32)), true
	case reflect.Float64:
		return rendered.Scalar(strconv.FormatFloat(rv.Float(), 'g', -1, 64)), true
	case reflect.Complex64, reflect.Complex128:
		return rendered.Scalar(fmt.Sprint(rv.Interface())), true
	}

	if text, ok := textForm(rv); ok {
		return rendered.Scalar(r.clip(text)), true
	}
	return rendered.Value{}, false
}

// enumStringer returns the String() form of named integer and string types.
func enumStringer(rv reflect.Value) (string, bool) {
	if rv.Type().PkgPath() == "" || !rv.CanInterface() {
		return "", false
	}
	s, ok := rv.Interface().(fmt.Stringer)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// textForm returns the text of errors and of opaque value types such as
// uuid.UUID or net.IP that print through String or MarshalText.
func textForm(rv reflect.Value) (string, bool) {
	if !rv.CanInterface() {
		return "", false
	}
	if err, ok := rv.Interface().(error); ok {
		return err.Error(), true
	}
	t := rv.Type()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType, durationType, secretType:
		return "", false
	}
	if !opaque(t) || IsInspectable(rv) {
		return "", false
	}
	switch v := rv.Interface().(type) {
	case fmt.Stringer:
		return v.String(), true
	case encoding.TextMarshaler:
		if b, err := v.MarshalText(); err == nil {
			return string(b), true
		}
	}
	return "", false
}

// opaque reports whether t hides its contents from reflection-based
// rendering.
func opaque(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				return false
			}
		}
		return true
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Interface:
		return false
	default:
		return true
	}
}

func (r *Renderer) scrub(s string) string {
	if r.opts.Scrubber == nil {
		return s
	}
	return r.opts.Scrubber.ScrubString(s)
}

func (r *Renderer) truncate(s string) string {
	return r.truncateTo(s, utf8.RuneCountInString(s))
}

// clip scrubs s and truncates the result. The marker reports the length of
// the unscrubbed text.
func (r *Renderer) clip(s string) string {
	return r.truncateTo(r.scrub(s), utf8.RuneCountInString(s))
}

func (r *Renderer) truncateTo(s string, total int) string {
	limit := r.opts.MaxStringLength
	if total <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes) + "... (truncated, " + strconv.Itoa(total) + " chars total)"
}

func (r *Renderer) mapping(rv reflect.Value, depth int, st *state) rendered.Value {
	keys := rv.MapKeys()
	labels := make([]string, len(keys))
	order := make([]int, len(keys))
	for i, k := range keys {
		labels[i] = keyLabel(k)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return labels[order[a]] < labels[order[b]] })

	n := len(keys)
	if n > r.opts.MaxItems {
		n = r.opts.MaxItems
	}
	entries := make([]rendered.Entry, 0, n)
	for _, idx := range order[:n] {
		label := labels[idx]
		d := r.opts.Policy.Directive(label)
		entries = append(entries, rendered.Entry{
			Key:   label,
			Value: r.guarded(rv.MapIndex(keys[idx]), d, depth+1, st),
		})
	}
	return rendered.Mapping(entries, len(keys))
}

func keyLabel(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func (r *Renderer) sequence(rv reflect.Value, depth int, st *state) rendered.Value {
	total := rv.Len()
	n := total
	if n > r.opts.MaxItems {
		n = r.opts.MaxItems
	}
	items := make([]rendered.Value, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, r.guarded(rv.Index(i), sensitivity.None(), depth+1, st))
	}
	return rendered.Sequence(items, total)
}

// isSeq reports whether t is an iter.Seq shaped function.
func isSeq(t reflect.Type) bool {
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func && yield.NumIn() == 1 &&
		yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool
}

// lazySequence pulls at most MaxItems+1 elements from an iterator so the
// remainder is never produced.
func (r *Renderer) lazySequence(rv reflect.Value, depth int, st *state) rendered.Value {
	items := make([]rendered.Value, 0, r.opts.MaxItems)
	more := false
	for v := range rv.Seq() {
		if len(items) == r.opts.MaxItems {
			more = true
			break
		}
		items = append(items, r.guarded(v, sensitivity.None(), depth+1, st))
	}
	return rendered.PartialSequence(items, more)
}

func (r *Renderer) object(rv reflect.Value, depth int, st *state) rendered.Value {
	fields, ok := fieldsOf(rv)
	if !ok {
		return r.fallback(rv)
	}
	if len(fields) > r.opts.MaxFields {
		return rendered.Scalar("<" + TypeName(rv.Type()) + "> (with " + strconv.Itoa(len(fields)) + " fields)")
	}
	entries := make([]rendered.Entry, 0, len(fields))
	for _, f := range fields {
		var v rendered.Value
		if f.Err != nil {
			v = rendered.Error(ReadErrorText)
		} else {
			d := sensitivity.Resolve(sensitivity.None(), f.Directive, f.Name, r.opts.Policy)
			v = r.guarded(reflect.ValueOf(f.Value), d, depth+1, st)
		}
		entries = append(entries, rendered.Entry{Key: f.Name, Value: v})
	}
	return rendered.Mapping(entries, len(fields))
}

// guarded renders one member, isolating panics raised while reading it.
func (r *Renderer) guarded(rv reflect.Value, d sensitivity.Directive, depth int, st *state) (out rendered.Value) {
	defer func() {
		if p := recover(); p != nil {
			out = rendered.Error(ReadErrorText)
		}
	}()
	if !d.IsNone() {
		var v any
		if rv.IsValid() && rv.CanInterface() {
			v = rv.Interface()
		}
		hidden, _ := d.Apply(v)
		return hidden
	}
	return r.render(rv, depth, st)
}

func (r *Renderer) fallback(rv reflect.Value) rendered.Value {
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rendered.Scalar("<" + TypeName(rv.Type()) + ">")
	}
	if !rv.CanInterface() {
		return rendered.Scalar("<" + TypeName(rv.Type()) + ">")
	}
	return rendered.Scalar(r.clip(fmt.Sprint(rv.Interface())))
}
