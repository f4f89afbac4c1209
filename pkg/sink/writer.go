package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// FileMode is the permission used for files created by OpenJSONFile.
const FileMode = 0o600

// JSONSink writes one JSON object per record, each on its own line.
type JSONSink struct {
	opts options

	mu     sync.Mutex
	w      io.Writer
	enc    *json.Encoder
	closer io.Closer
}

// JSON returns a sink encoding records to w. The sink does not close w.
func JSON(w io.Writer, opts ...Option) *JSONSink {
	return &JSONSink{opts: buildOptions(opts), w: w, enc: json.NewEncoder(w)}
}

// OpenJSONFile returns a sink appending to the file at path, creating it
// when missing. Close closes the file.
func OpenJSONFile(path string, opts ...Option) (*JSONSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, FileMode)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	s := JSON(f, opts...)
	s.closer = f
	return s, nil
}

// Log encodes rec as one line.
func (s *JSONSink) Log(_ context.Context, rec record.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return ErrClosed
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return nil
}

// Enabled implements record.Sink.
func (s *JSONSink) Enabled(level record.Level) bool {
	return level >= s.opts.minLevel
}

// Close syncs and closes an owned file. Later writes fail with ErrClosed.
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	s.w = nil
	if s.closer == nil {
		return nil
	}
	if f, ok := s.closer.(*os.File); ok {
		_ = f.Sync()
	}
	return s.closer.Close()
}

// TextSink writes the multi-line human readable form of each record followed
// by a blank line.
type TextSink struct {
	opts options

	mu sync.Mutex
	w  io.Writer
}

// Text returns a sink writing to w.
func Text(w io.Writer, opts ...Option) *TextSink {
	return &TextSink{opts: buildOptions(opts), w: w}
}

// Log writes rec.
func (s *TextSink) Log(_ context.Context, rec record.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, rec.Text()+"\n"); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Enabled implements record.Sink.
func (s *TextSink) Enabled(level record.Level) bool {
	return level >= s.opts.minLevel
}

var (
	_ record.Sink = (*JSONSink)(nil)
	_ record.Sink = (*TextSink)(nil)
	_ Closer      = (*JSONSink)(nil)
)
