package record

import (
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/pkg/render"
	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// EnvDevelopment is the environment in which debug and trace calls are
// visible.
const EnvDevelopment = "development"

// Settings is the global configuration surface of an Assembler.
type Settings struct {
	MinLevel    Level
	Environment string

	LogParameters    bool
	LogReturnValues  bool
	LogExecutionTime bool
	TrackDataChanges bool

	MaxComparisonDepth int
	MaxObjectDepth     int
	MaxStringLength    int
	MaxCollectionItems int

	// ParameterItems and ReturnItems cap collection sampling per record and
	// are themselves capped by MaxCollectionItems.
	ParameterItems int
	ReturnItems    int

	// ParameterFields and ReturnFields are the largest struct rendered field
	// by field.
	ParameterFields int
	ReturnFields    int
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MinLevel:           zapcore.InfoLevel,
		Environment:        "production",
		LogParameters:      true,
		LogReturnValues:    true,
		LogExecutionTime:   true,
		TrackDataChanges:   true,
		MaxComparisonDepth: 3,
		MaxObjectDepth:     3,
		MaxStringLength:    10000,
		MaxCollectionItems: 100,
		ParameterItems:     render.ParameterMaxItems,
		ReturnItems:        render.ReturnMaxItems,
		ParameterFields:    render.ParameterMaxFields,
		ReturnFields:       render.ReturnMaxFields,
	}
}

// normalized fills non-positive limits from DefaultSettings.
func (s Settings) normalized() Settings {
	d := DefaultSettings()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&s.MaxComparisonDepth, d.MaxComparisonDepth)
	fill(&s.MaxObjectDepth, d.MaxObjectDepth)
	fill(&s.MaxStringLength, d.MaxStringLength)
	fill(&s.MaxCollectionItems, d.MaxCollectionItems)
	fill(&s.ParameterItems, d.ParameterItems)
	fill(&s.ReturnItems, d.ReturnItems)
	fill(&s.ParameterFields, d.ParameterFields)
	fill(&s.ReturnFields, d.ReturnFields)
	if s.Environment == "" {
		s.Environment = d.Environment
	}
	return s
}

// Visible reports whether a call at level produces records. Debug and trace
// calls are suppressed outside development whatever MinLevel says;
// otherwise level must reach MinLevel.
func (s Settings) Visible(level Level) bool {
	if level <= zapcore.DebugLevel && !strings.EqualFold(s.Environment, EnvDevelopment) {
		return false
	}
	return level >= s.MinLevel
}

func (s Settings) rendererOptions(items, fields int) render.Options {
	if items > s.MaxCollectionItems {
		items = s.MaxCollectionItems
	}
	return render.Options{
		MaxDepth:        s.MaxObjectDepth,
		MaxItems:        items,
		MaxStringLength: s.MaxStringLength,
		MaxFields:       fields,
	}
}

// Attribute configures one instrumented call site.
type Attribute struct {
	Level Level

	IncludeParameters    bool
	IncludeReturnValue   bool
	IncludeExecutionTime bool

	// TrackChanges enables diffing of the call's before and after objects.
	TrackChanges *TrackChanges
}

// DefaultAttribute logs at info with parameters, return value and timing.
func DefaultAttribute() Attribute {
	return Attribute{
		Level:                zapcore.InfoLevel,
		IncludeParameters:    true,
		IncludeReturnValue:   true,
		IncludeExecutionTime: true,
	}
}

// TrackChanges configures change tracking for a call.
type TrackChanges struct {
	// MaxComparisonDepth overrides Settings.MaxComparisonDepth when positive.
	MaxComparisonDepth int

	// OperationType labels the change, "Update" when empty.
	OperationType string
}

// Param is one argument of an instrumented call.
type Param struct {
	Name  string
	Value any

	// Directive overrides field directives and the name policy for this
	// argument.
	Directive sensitivity.Directive

	// Before marks the object holding the state before the call. After
	// marks the object holding the state after it; without one the return
	// value is used when its type fits.
	Before bool
	After  bool
}

// Call identifies an instrumented invocation.
type Call struct {
	Type   string
	Method string
	Params []Param

	// Attr is DefaultAttribute when nil.
	Attr *Attribute
}

// Name returns "Type.Method", or the method alone when there is no type.
func (c Call) Name() string {
	if c.Type == "" {
		return c.Method
	}
	return c.Type + "." + c.Method
}

func (c Call) attribute() Attribute {
	if c.Attr == nil {
		return DefaultAttribute()
	}
	return *c.Attr
}
