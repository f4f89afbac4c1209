package sink

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// Recorder keeps records in memory. It is meant for tests and for tools that
// inspect records after the fact.
type Recorder struct {
	opts options

	mu      sync.Mutex
	records []record.LogRecord
}

// NewRecorder returns an empty Recorder.
func NewRecorder(opts ...Option) *Recorder {
	return &Recorder{opts: buildOptions(opts)}
}

// Log stores rec.
func (r *Recorder) Log(_ context.Context, rec record.LogRecord) error {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return nil
}

// Enabled implements record.Sink.
func (r *Recorder) Enabled(level record.Level) bool {
	return level >= r.opts.minLevel
}

// Records returns a copy of the stored records in arrival order.
func (r *Recorder) Records() []record.LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]record.LogRecord(nil), r.records...)
}

// Messages returns the message of every stored record.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Message
	}
	return out
}

// Len returns the number of stored records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Reset drops every stored record.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

var _ record.Sink = (*Recorder)(nil)
