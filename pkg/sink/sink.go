// Package sink provides destinations for log records.
//
// Zap writes records through a zap logger, JSON appends one JSON object per
// line to a writer or file, Text writes the multi-line human form, Multi
// fans out to several sinks and Recorder keeps records in memory.
//
// Every sink here is safe for concurrent use.
package sink

import (
	"errors"
	"strings"

	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// ErrClosed is returned when writing to a closed sink.
var ErrClosed = errors.New("sink: closed")

// Closer is implemented by sinks holding resources.
type Closer interface {
	Close() error
}

// Option configures the writer based sinks.
type Option func(*options)

type options struct {
	minLevel record.Level
}

// WithMinLevel drops records below level. The default accepts everything.
func WithMinLevel(level record.Level) Option {
	return func(o *options) { o.minLevel = level }
}

func buildOptions(opts []Option) options {
	o := options{minLevel: record.TraceLevel}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MultiError collects the failures of a fan-out write or close.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple errors:")
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying errors for use with errors.Is/As.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
