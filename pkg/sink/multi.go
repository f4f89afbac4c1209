package sink

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// MultiSink writes every record to each of its sinks.
type MultiSink struct {
	sinks []record.Sink
}

// Multi returns a sink fanning out to sinks. Nil entries are skipped.
func Multi(sinks ...record.Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Log writes rec to every sink enabled for its level, even when some fail.
// A panicking sink is reported as an error.
func (m *MultiSink) Log(ctx context.Context, rec record.LogRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if !s.Enabled(rec.Level) {
			continue
		}
		if err := logOne(ctx, s, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

func logOne(ctx context.Context, s record.Sink, rec record.LogRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink %T panicked: %v", s, p)
		}
	}()
	return s.Log(ctx, rec)
}

// Enabled reports whether any sink accepts level.
func (m *MultiSink) Enabled(level record.Level) bool {
	for _, s := range m.sinks {
		if s.Enabled(level) {
			return true
		}
	}
	return false
}

// Close closes every sink that implements Closer. All sinks are closed even
// if some fail.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

var _ record.Sink = (*MultiSink)(nil)
