package record

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/pkg/diff"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
)

func sampleRecord() LogRecord {
	ret := rendered.Scalar("ok")
	return LogRecord{
		Timestamp:  time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC),
		MethodName: "Ship",
		ClassName:  "OrderService",
		Level:      zapcore.InfoLevel,
		Message:    "Exiting OrderService.Ship",
		Parameters: []rendered.Entry{
			{Key: "zeta", Value: rendered.Scalar("1")},
			{Key: "alpha", Value: rendered.Scalar("2")},
		},
		ReturnValue:   &ret,
		ExecutionTime: 1500 * time.Microsecond,
		CorrelationID: "ab12cd34",
		ThreadID:      "worker-1",
		Changes: []diff.ChangeRecord{{
			Path:      "Status",
			OldValue:  rendered.Scalar("Pending"),
			NewValue:  rendered.Scalar("Shipped"),
			ValueType: "string",
		}},
		EntityType:    "Order",
		EntityID:      "42",
		OperationType: "Update",
		Context:       []rendered.Entry{{Key: "user", Value: rendered.Scalar("alice")}},
	}
}

func TestLogRecord_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(sampleRecord())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "2026-03-04T05:06:07.008Z", got["timestamp"])
	assert.Equal(t, "Ship", got["method_name"])
	assert.Equal(t, "OrderService", got["class_name"])
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "ok", got["return_value"])
	assert.Equal(t, "1.5ms", got["execution_time"])
	assert.Equal(t, "ab12cd34", got["correlation_id"])
	assert.Equal(t, "worker-1", got["thread_id"])
	assert.Equal(t, "Exiting OrderService.Ship", got["message"])
	assert.Equal(t, "Order", got["entity_type"])
	assert.Equal(t, "42", got["entity_id"])
	assert.Equal(t, "Update", got["operation_type"])
	assert.Equal(t, map[string]any{"user": "alice"}, got["context"])
	assert.NotContains(t, got, "error")

	changes, ok := got["changes"].([]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"path": "Status", "old_value": "Pending", "new_value": "Shipped", "value_type": "string",
	}, changes[0])

	assert.Less(t, strings.Index(string(data), `"zeta"`), strings.Index(string(data), `"alpha"`),
		"parameters keep declaration order")
}

func TestLogRecord_MarshalJSON_Minimal(t *testing.T) {
	data, err := json.Marshal(LogRecord{
		Timestamp: time.Unix(0, 0),
		Level:     zapcore.ErrorLevel,
		Message:   "Exception in M",
		Error:     NewErrorInfo(errors.New("boom")),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"type": "*errors.errorString", "message": "boom"}, got["error"])
	for _, absent := range []string{"parameters", "return_value", "execution_time", "changes", "context"} {
		assert.NotContains(t, got, absent)
	}
}

func TestLogRecord_TraceLevelName(t *testing.T) {
	data, err := json.Marshal(LogRecord{Level: TraceLevel})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"trace"`)
}

func TestLogRecord_Text(t *testing.T) {
	text := sampleRecord().Text()
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")

	assert.Equal(t, "2026-03-04T05:06:07.008Z INFO  Exiting OrderService.Ship (correlation_id=ab12cd34, thread_id=worker-1)", lines[0])
	assert.Contains(t, text, "  parameters: {zeta: 1, alpha: 2}\n")
	assert.Contains(t, text, "  return_value: ok\n")
	assert.Contains(t, text, "  execution_time: 1.5ms\n")
	assert.Contains(t, text, "  entity: Order#42 (Update)\n")
	assert.Contains(t, text, "  changes:\n    Status: Pending -> Shipped\n")
	assert.Contains(t, text, "  context: {user: alice}\n")
}

type codedError struct{ code int }

func (e *codedError) Error() string { return fmt.Sprintf("code %d", e.code) }

func TestNewErrorInfo(t *testing.T) {
	assert.Nil(t, NewErrorInfo(nil))
	assert.Equal(t, &ErrorInfo{Type: "*record.codedError", Message: "code 7"}, NewErrorInfo(&codedError{code: 7}))
	assert.Equal(t, &ErrorInfo{Type: "panic", Message: "oops"}, NewErrorInfo(&PanicError{Value: "oops"}))
}

func TestCall_Name(t *testing.T) {
	assert.Equal(t, "Orders.Save", Call{Type: "Orders", Method: "Save"}.Name())
	assert.Equal(t, "Save", Call{Method: "Save"}.Name())
	assert.Equal(t, DefaultAttribute(), Call{}.attribute())
}
