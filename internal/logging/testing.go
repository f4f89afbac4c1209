package logging

import (
	"reflect"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

// TestLogger is a Logger backed by an in-memory observer at TraceLevel.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

// FilterMessage returns entries whose message contains snippet.
func (t *TestLogger) FilterMessage(snippet string) *observer.ObservedLogs {
	return t.logs.FilterMessageSnippet(snippet)
}

func (t *TestLogger) Reset() {
	t.logs.TakeAll()
}

func (t *TestLogger) find(level zapcore.Level, snippet string) []observer.LoggedEntry {
	return t.logs.FilterLevelExact(level).FilterMessageSnippet(snippet).All()
}

func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if len(t.find(level, snippet)) == 0 {
		tb.Errorf("expected %s entry containing %q, got %+v", LevelName(level), snippet, t.logs.All())
	}
}

func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if n := len(t.find(level, snippet)); n > 0 {
		tb.Errorf("unexpected %s entry containing %q (%d found)", LevelName(level), snippet, n)
	}
}

// AssertField checks that some entry containing snippet carries key=expected.
// Integer fields compare as int64.
func (t *TestLogger) AssertField(tb testing.TB, snippet, key string, expected any) {
	tb.Helper()
	for _, entry := range t.logs.FilterMessageSnippet(snippet).All() {
		if v, ok := entry.ContextMap()[key]; ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found on entries containing %q", key, expected, snippet)
}

// AssertCorrelated checks that every entry containing snippet carries the
// correlation id.
func (t *TestLogger) AssertCorrelated(tb testing.TB, snippet, correlationID string) {
	tb.Helper()
	entries := t.logs.FilterMessageSnippet(snippet).All()
	if len(entries) == 0 {
		tb.Errorf("no entries containing %q", snippet)
		return
	}
	for _, entry := range entries {
		if got := entry.ContextMap()["correlation_id"]; got != correlationID {
			tb.Errorf("entry %q has correlation_id %v, want %q", entry.Message, got, correlationID)
		}
	}
}

func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, snippet string) {
	tb.Helper()
	for _, entry := range t.logs.FilterMessageSnippet(snippet).All() {
		if _, ok := entry.ContextMap()["trace_id"]; ok {
			return
		}
	}
	tb.Errorf("no entry containing %q has a trace_id", snippet)
}

var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+\S+`),
	regexp.MustCompile(`(?i)api[_-]?key[=:]\s*\S+`),
}

// AssertNoSecrets fails on string fields named like secrets under the
// default policy that do not hold a redaction marker, and on bearer tokens
// or api keys anywhere in messages or string fields.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	policy := sensitivity.DefaultPolicy()
	leaks := func(s string) bool {
		for _, re := range leakPatterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, entry := range t.logs.All() {
		if leaks(entry.Message) {
			tb.Errorf("secret in message: %q", entry.Message)
		}
		for _, field := range entry.Context {
			if field.Type != zapcore.StringType {
				continue
			}
			if policy.Matches(field.Key) && field.String != "" && !strings.Contains(field.String, "[REDACTED") {
				tb.Errorf("field %q not redacted: %q", field.Key, field.String)
			}
			if leaks(field.String) {
				tb.Errorf("secret in field %q: %q", field.Key, field.String)
			}
		}
	}
}
