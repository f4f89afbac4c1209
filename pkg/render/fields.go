package render

import (
	"fmt"
	"reflect"

	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// Field is one named member of a structurally inspectable object.
type Field struct {
	Name  string
	Value any

	// Directive is the field-level sensitivity directive.
	Directive sensitivity.Directive

	// CompareExcluded removes the field from change comparison.
	CompareExcluded bool

	// Err is set when the field value could not be read.
	Err error
}

// Inspectable is implemented by types that describe their own fields instead
// of being reflected over. LogFields may return fields with Err set for
// members that fail to load.
type Inspectable interface {
	LogFields() []Field
}

// FieldsOf enumerates the fields of v. Structs contribute their exported
// fields in declaration order, honouring log and diff struct tags. It reports
// false when v is neither a struct nor Inspectable.
func FieldsOf(v any) ([]Field, bool) {
	if v == nil {
		return nil, false
	}
	return fieldsOf(reflect.ValueOf(v))
}

func fieldsOf(rv reflect.Value) (fields []Field, ok bool) {
	for {
		if !rv.IsValid() {
			return nil, false
		}
		if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
			return nil, false
		}
		if in, isInspectable := asInspectable(rv); isInspectable {
			defer func() {
				if p := recover(); p != nil {
					fields = []Field{{Name: "LogFields", Err: fmt.Errorf("panic: %v", p)}}
					ok = true
				}
			}()
			return in.LogFields(), true
		}
		if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface {
			break
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	t := rv.Type()
	fields = make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fields = append(fields, Field{
			Name:            sf.Name,
			Value:           rv.Field(i).Interface(),
			Directive:       sensitivity.FieldDirective(sf),
			CompareExcluded: sensitivity.CompareExcluded(sf),
		})
	}
	return fields, true
}

func asInspectable(rv reflect.Value) (Inspectable, bool) {
	if !rv.CanInterface() {
		return nil, false
	}
	if in, ok := rv.Interface().(Inspectable); ok {
		return in, true
	}
	if rv.CanAddr() && rv.Addr().CanInterface() {
		in, ok := rv.Addr().Interface().(Inspectable)
		return in, ok
	}
	return nil, false
}

// IsInspectable reports whether v should be treated as an object with fields.
func IsInspectable(rv reflect.Value) bool {
	_, ok := asInspectable(rv)
	return ok
}

// TypeName returns the short name used in placeholders.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
