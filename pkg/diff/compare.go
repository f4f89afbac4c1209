// Package diff detects changes between two snapshots of the same value.
//
// Compare walks both values in lockstep. Scalars are compared by value, maps
// by key union, slices index by index and structs field by field in
// declaration order. Nesting is bounded by a maximum depth; once it is
// exhausted an unequal pair is reported as a single change carrying depth
// placeholders instead of being dropped.
package diff

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/tracelog/pkg/render"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// DefaultMaxDepth is the comparison depth used when none is configured.
const DefaultMaxDepth = 3

// ChangeRecord describes one detected change.
type ChangeRecord struct {
	// Path locates the change, for example "Shipping.Address.City" or
	// "Items[2].Quantity". The empty path is the root value.
	Path string `json:"path"`

	OldValue rendered.Value `json:"old_value"`
	NewValue rendered.Value `json:"new_value"`

	// ValueType is the type name of the changed value.
	ValueType string `json:"value_type"`
}

// String formats the change as "path: old -> new".
func (c ChangeRecord) String() string {
	path := c.Path
	if path == "" {
		path = "(root)"
	}
	return path + ": " + c.OldValue.String() + " -> " + c.NewValue.String()
}

// Option configures Compare.
type Option func(*comparer)

// WithMaxDepth sets how many levels below the root are compared. Values at
// the limit are compared with reflect.DeepEqual.
func WithMaxDepth(depth int) Option {
	return func(c *comparer) {
		if depth >= 0 {
			c.maxDepth = depth
		}
	}
}

// WithRenderer sets the renderer used for old and new values.
func WithRenderer(r *render.Renderer) Option {
	return func(c *comparer) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithDirective sets the directive governing the root value, as a parameter
// directive does when rendering. Exclude and Redact hide every change;
// Mask masks each changed leaf.
func WithDirective(d sensitivity.Directive) Option {
	return func(c *comparer) { c.root = d }
}

type comparer struct {
	maxDepth int
	renderer *render.Renderer
	policy   *sensitivity.Policy
	root     sensitivity.Directive
	out      []ChangeRecord
}

// Compare returns the changes turning before into after. Records follow
// traversal order: struct fields in declaration order, map keys sorted by
// their formatted representation and slice elements by index.
func Compare(before, after any, opts ...Option) []ChangeRecord {
	c := &comparer{
		maxDepth: DefaultMaxDepth,
		renderer: render.New(render.ReturnOptions()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy = c.renderer.Options().Policy
	c.compare(reflect.ValueOf(before), reflect.ValueOf(after), c.maxDepth, "", c.root)
	return c.out
}

var timeType = reflect.TypeOf(time.Time{})

func (c *comparer) compare(before, after reflect.Value, depth int, path string, d sensitivity.Directive) {
	before, after = indirect(before), indirect(after)

	switch {
	case !before.IsValid() && !after.IsValid():
		return
	case !before.IsValid() || !after.IsValid():
		c.emit(path, before, after, d)
		return
	case before.Type() != after.Type():
		c.emit(path, before, after, d)
		return
	}

	if isScalar(before) {
		if !scalarEqual(before, after) {
			c.emit(path, before, after, d)
		}
		return
	}

	// Excluded and redacted containers are never walked.
	if k := d.Kind(); k == sensitivity.KindExclude || k == sensitivity.KindRedact {
		if !deepEqual(before, after) {
			c.emit(path, before, after, d)
		}
		return
	}

	if depth <= 0 {
		if !deepEqual(before, after) {
			c.emitLimited(path, before, after, d)
		}
		return
	}

	if render.IsInspectable(before) {
		c.fields(before, after, depth, path, d)
		return
	}

	switch before.Kind() {
	case reflect.Map:
		c.maps(before, after, depth, path, d)
	case reflect.Slice, reflect.Array:
		c.sequences(before, after, depth, path, d)
	case reflect.Struct:
		c.fields(before, after, depth, path, d)
	default:
		if !deepEqual(before, after) {
			c.emit(path, before, after, d)
		}
	}
}

func (c *comparer) maps(before, after reflect.Value, depth int, path string, parent sensitivity.Directive) {
	type pair struct {
		label string
		typ   string
		key   reflect.Value
	}
	seen := make(map[any]bool)
	var keys []pair
	for _, m := range []reflect.Value{after, before} {
		for _, k := range m.MapKeys() {
			id := keyIdentity(k)
			if seen[id] {
				continue
			}
			seen[id] = true
			keys = append(keys, pair{label: keyLabel(k), typ: keyType(k), key: k})
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].label != keys[j].label {
			return keys[i].label < keys[j].label
		}
		return keys[i].typ < keys[j].typ
	})

	for _, k := range keys {
		kp := path + "[" + k.label + "]"
		d := inherit(parent, c.policy.Directive(k.label))
		bv := before.MapIndex(k.key)
		av := after.MapIndex(k.key)
		switch {
		case !bv.IsValid():
			c.emit(kp, reflect.Value{}, av, d)
		case !av.IsValid():
			c.emit(kp, bv, reflect.Value{}, d)
		default:
			c.compare(bv, av, depth-1, kp, d)
		}
	}
}

func (c *comparer) sequences(before, after reflect.Value, depth int, path string, d sensitivity.Directive) {
	if before.Kind() == reflect.Slice && before.Type().Elem().Kind() == reflect.Uint8 {
		if !bytes.Equal(before.Bytes(), after.Bytes()) {
			c.emit(path, before, after, d)
		}
		return
	}
	if before.Len() != after.Len() {
		c.out = append(c.out, ChangeRecord{
			Path:      path,
			OldValue:  rendered.Scalar("Count: " + strconv.Itoa(before.Len())),
			NewValue:  rendered.Scalar("Count: " + strconv.Itoa(after.Len())),
			ValueType: render.TypeName(before.Type()),
		})
		return
	}
	for i := 0; i < before.Len(); i++ {
		c.compare(before.Index(i), after.Index(i), depth-1, path+"["+strconv.Itoa(i)+"]", d)
	}
}

func (c *comparer) fields(before, after reflect.Value, depth int, path string, parent sensitivity.Directive) {
	bf, _ := render.FieldsOf(interfaceOf(before))
	af, _ := render.FieldsOf(interfaceOf(after))

	index := make(map[string]int, len(af))
	for i, f := range af {
		index[f.Name] = i
	}
	done := make(map[string]bool, len(bf))

	for _, b := range bf {
		done[b.Name] = true
		if b.CompareExcluded {
			continue
		}
		fp := joinPath(path, b.Name)
		d := inherit(parent, sensitivity.Resolve(sensitivity.None(), b.Directive, b.Name, c.policy))

		i, ok := index[b.Name]
		if !ok {
			c.emit(fp, reflect.ValueOf(b.Value), reflect.Value{}, d)
			continue
		}
		a := af[i]
		if b.Err != nil || a.Err != nil {
			c.out = append(c.out, ChangeRecord{
				Path:      fp,
				OldValue:  rendered.Error(render.ReadErrorText),
				NewValue:  rendered.Error(render.ReadErrorText),
				ValueType: "error",
			})
			continue
		}
		c.guarded(reflect.ValueOf(b.Value), reflect.ValueOf(a.Value), depth-1, fp, d)
	}

	for _, a := range af {
		if done[a.Name] || a.CompareExcluded {
			continue
		}
		d := inherit(parent, sensitivity.Resolve(sensitivity.None(), a.Directive, a.Name, c.policy))
		c.emit(joinPath(path, a.Name), reflect.Value{}, reflect.ValueOf(a.Value), d)
	}
}

// guarded compares one field pair, turning a panic raised while reading
// either side into an error change.
func (c *comparer) guarded(before, after reflect.Value, depth int, path string, d sensitivity.Directive) {
	mark := len(c.out)
	defer func() {
		if p := recover(); p != nil {
			c.out = append(c.out[:mark], ChangeRecord{
				Path:      path,
				OldValue:  rendered.Error(render.ReadErrorText),
				NewValue:  rendered.Error(render.ReadErrorText),
				ValueType: "error",
			})
		}
	}()
	c.compare(before, after, depth, path, d)
}

func (c *comparer) emit(path string, before, after reflect.Value, d sensitivity.Directive) {
	c.out = append(c.out, ChangeRecord{
		Path:      path,
		OldValue:  c.renderValue(before, d),
		NewValue:  c.renderValue(after, d),
		ValueType: valueType(before, after),
	})
}

func (c *comparer) emitLimited(path string, before, after reflect.Value, d sensitivity.Directive) {
	flat := c.renderer.WithDepth(0)
	c.out = append(c.out, ChangeRecord{
		Path:      path,
		OldValue:  flat.RenderWith(interfaceOf(before), d),
		NewValue:  flat.RenderWith(interfaceOf(after), d),
		ValueType: valueType(before, after),
	})
}

func (c *comparer) renderValue(v reflect.Value, d sensitivity.Directive) rendered.Value {
	if !v.IsValid() {
		if d.Kind() == sensitivity.KindExclude {
			return rendered.Excluded()
		}
		return rendered.Null()
	}
	return c.renderer.RenderWith(interfaceOf(v), d)
}

func valueType(before, after reflect.Value) string {
	if after.IsValid() {
		return render.TypeName(after.Type())
	}
	if before.IsValid() {
		return render.TypeName(before.Type())
	}
	return "nil"
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		if v.Kind() == reflect.Pointer && render.IsInspectable(v) && !render.IsInspectable(v.Elem()) {
			break
		}
		v = v.Elem()
	}
	return v
}

func interfaceOf(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

func isScalar(v reflect.Value) bool {
	if v.Type() == timeType {
		return true
	}
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Struct:
		return !render.IsInspectable(v) && !hasExported(v.Type())
	case reflect.Array:
		return v.Type().Comparable() && !hasStructure(v.Type().Elem())
	}
	return false
}

func hasExported(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func hasStructure(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer, reflect.Interface:
		return true
	}
	return false
}

func scalarEqual(before, after reflect.Value) bool {
	if before.Type() == timeType {
		return before.Interface().(time.Time).Equal(after.Interface().(time.Time))
	}
	switch before.Kind() {
	case reflect.Bool:
		return before.Bool() == after.Bool()
	case reflect.String:
		return before.String() == after.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return before.Int() == after.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return before.Uint() == after.Uint()
	case reflect.Float32, reflect.Float64:
		a, b := before.Float(), after.Float()
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	case reflect.Complex64, reflect.Complex128:
		return before.Complex() == after.Complex()
	}
	return deepEqual(before, after)
}

func deepEqual(before, after reflect.Value) bool {
	if !before.CanInterface() || !after.CanInterface() {
		return false
	}
	return reflect.DeepEqual(before.Interface(), after.Interface())
}

// inherit returns the directive of a nested value. Its own directive wins
// over the one carried down from an enclosing masked container.
func inherit(parent, own sensitivity.Directive) sensitivity.Directive {
	if own.IsNone() {
		return parent
	}
	return own
}

// keyIdentity returns a value distinguishing map keys that format alike,
// such as 1 and "1" in a map[any]V.
func keyIdentity(k reflect.Value) any {
	if k.CanInterface() {
		return k.Interface()
	}
	return keyType(k) + ":" + keyLabel(k)
}

func keyType(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	return k.Type().String()
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

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
