package rendered

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSequence_Truncation(t *testing.T) {
	items := []Value{Scalar("1"), Scalar("2"), Scalar("3")}
	v := Sequence(items, 10)

	assert.Equal(t, KindSequence, v.Kind())
	assert.True(t, v.Truncated())
	assert.Equal(t, 10, v.Count())
	assert.True(t, v.CountKnown())
	assert.Len(t, v.Sampled(), 3)
	require.Len(t, v.Items(), 4)
	assert.Equal(t, "... (7 more)", v.Items()[3].Text())
	assert.Equal(t, "10", v.CountLabel())
}

func TestSequence_Complete(t *testing.T) {
	v := Sequence([]Value{Scalar("a")}, 1)
	assert.False(t, v.Truncated())
	assert.Len(t, v.Items(), 1)
	assert.Equal(t, "[a]", v.String())
}

func TestPartialSequence(t *testing.T) {
	v := PartialSequence([]Value{Scalar("a"), Scalar("b")}, true)
	assert.False(t, v.CountKnown())
	assert.Equal(t, "2+", v.CountLabel())
	assert.Len(t, v.Sampled(), 2)
	assert.True(t, v.Truncated())

	done := PartialSequence([]Value{Scalar("a")}, false)
	assert.True(t, done.CountKnown())
	assert.False(t, done.Truncated())
}

func TestMapping_MarkerEntry(t *testing.T) {
	v := Mapping([]Entry{{Key: "a", Value: Scalar("1")}}, 4)
	require.Len(t, v.Entries(), 2)
	assert.Equal(t, MoreKey, v.Entries()[1].Key)
	assert.Equal(t, "(3 more)", v.Entries()[1].Value.Text())

	got, ok := v.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "1", got.Text())

	_, ok = v.Lookup(MoreKey)
	assert.False(t, ok, "marker entry is not a sampled entry")
}

func TestValue_String(t *testing.T) {
	v := Mapping([]Entry{
		{Key: "name", Value: Scalar("widget")},
		{Key: "tags", Value: Sequence([]Value{Scalar("x"), Scalar("y")}, 2)},
		{Key: "secret", Value: Redacted()},
		{Key: "hidden", Value: Excluded()},
		{Key: "broken", Value: Error("<error reading value>")},
	}, 5)

	assert.Equal(t, "{name: widget, tags: [x, y], secret: [REDACTED], hidden: [EXCLUDED], broken: <error reading value>}", v.String())
}

func TestValue_MarshalJSON(t *testing.T) {
	v := Mapping([]Entry{
		{Key: "z", Value: Scalar("last \"quoted\"")},
		{Key: "a", Value: Sequence([]Value{Scalar("1")}, 3)},
		{Key: "p", Value: Redacted()},
	}, 3)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"last \"quoted\"","a":["1","... (2 more)"],"p":"[REDACTED]"}`, string(b))
}

func TestValue_Equal(t *testing.T) {
	a := Sequence([]Value{Scalar("1"), Scalar("2")}, 2)
	b := Sequence([]Value{Scalar("1"), Scalar("2")}, 2)
	c := Sequence([]Value{Scalar("1"), Scalar("3")}, 2)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, Excluded().Equal(Redacted()))
	assert.True(t, Null().IsNull())
}

func TestField_Zap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	params := Mapping([]Entry{
		{Key: "id", Value: Scalar("42")},
		{Key: "items", Value: Sequence([]Value{Scalar("a")}, 1)},
		{Key: "nested", Value: Mapping([]Entry{{Key: "k", Value: Scalar("v")}}, 1)},
	}, 3)
	logger.Info("call", Field("parameters", params), Field("result", Scalar("ok")))

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "ok", ctx["result"])

	obj, ok := ctx["parameters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "42", obj["id"])
	assert.Equal(t, []interface{}{"a"}, obj["items"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, obj["nested"])
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "mapping", KindMapping.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
