package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/tracelog/internal/logging"
	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// DefaultNATSSubject is the subject prefix used when none is configured.
const DefaultNATSSubject = "tracelog.records"

// NATSSink publishes each record as JSON on
//
//	<prefix>.<level>.<class>
//
// so subscribers can filter with wildcards, e.g. "tracelog.records.error.>"
// or "tracelog.records.*.OrderService".
type NATSSink struct {
	opts   options
	prefix string
	owned  bool

	mu   sync.RWMutex
	conn *nats.Conn
}

// NATS returns a sink publishing on nc. The sink does not close nc.
func NATS(nc *nats.Conn, prefix string, opts ...Option) *NATSSink {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	return &NATSSink{opts: buildOptions(opts), prefix: prefix, conn: nc}
}

// ConnectNATS dials url and returns a sink owning the connection. Close
// flushes pending records and closes it.
func ConnectNATS(url, prefix string, opts ...Option) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("tracelog"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	s := NATS(nc, prefix, opts...)
	s.owned = true
	return s, nil
}

// Subject returns the subject rec is published on.
func (s *NATSSink) Subject(rec record.LogRecord) string {
	return s.prefix + "." + logging.LevelName(rec.Level) + "." + subjectToken(rec.ClassName)
}

// Log publishes rec. Publishing is buffered by the client, so a nil error
// does not mean a subscriber has seen the record.
func (s *NATSSink) Log(_ context.Context, rec record.LogRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return ErrClosed
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := s.conn.Publish(s.Subject(rec), data); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Enabled implements record.Sink.
func (s *NATSSink) Enabled(level record.Level) bool {
	return level >= s.opts.minLevel
}

// Close flushes buffered records. An owned connection is then closed.
func (s *NATSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	nc := s.conn
	s.conn = nil

	var err error
	if nc.IsConnected() {
		err = nc.FlushTimeout(5 * time.Second)
	}
	if s.owned {
		nc.Close()
	}
	return err
}

// subjectToken makes name usable as a single subject token.
func subjectToken(name string) string {
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, name)
}
