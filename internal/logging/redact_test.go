package logging

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/pkg/sensitivity"
)

func TestSecretFields(t *testing.T) {
	assert.Equal(t, "[REDACTED:18]", Secret("creds", sensitivity.Secret("super-secret-value")).String)
	assert.Equal(t, "[REDACTED:19]", RedactedString("api_key", "sk-1234567890abcdef").String)
	assert.Equal(t, "[REDACTED:0]", RedactedString("api_key", "").String)
}

func encodeRedacted(t *testing.T, cfg RedactionConfig, msg string, fields ...zapcore.Field) map[string]any {
	t.Helper()
	enc, err := newRedactingEncoder(newEncoder("json"), cfg)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.InfoLevel, Message: msg}, fields)
	require.NoError(t, err)
	defer buf.Free()

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	out := encodeRedacted(t, RedactionConfig{Enabled: true, Fields: sensitivity.DefaultFieldNames}, "m",
		zap.String("password", "hunter2"),
		zap.String("userPassword", "hunter3"),
		zap.String("API-Key", "k"),
		zap.ByteString("token", []byte("t")),
		zap.Binary("secret_blob", []byte{1, 2}),
		zap.Any("credentials", map[string]string{"a": "b"}),
		zap.Strings("authorization", []string{"x"}),
		zap.String("username", "alice"),
	)

	for _, key := range []string{"password", "userPassword", "API-Key", "token", "secret_blob", "credentials", "authorization"} {
		assert.Equal(t, "[REDACTED]", out[key], key)
	}
	assert.Equal(t, "alice", out["username"])
}

func TestRedactingEncoder_PatternsMaskInPlace(t *testing.T) {
	cfg := RedactionConfig{Enabled: true, Patterns: []string{`(?i)bearer\s+\S+`}}
	out := encodeRedacted(t, cfg, "retrying with Bearer abc.def",
		zap.String("header", "auth=Bearer abc.def ok"),
		zap.ByteString("raw", []byte("bearer xyz")),
		zap.String("note", "nothing here"),
	)

	assert.Equal(t, "retrying with [REDACTED]", out["msg"])
	assert.Equal(t, "auth=[REDACTED] ok", out["header"])
	assert.Equal(t, "[REDACTED]", out["raw"])
	assert.Equal(t, "nothing here", out["note"])
}

func TestRedactingEncoder_CustomReplacement(t *testing.T) {
	cfg := RedactionConfig{Enabled: true, Fields: []string{"pin"}, Patterns: []string{`\d{16}`}, Replacement: "<hidden>"}
	out := encodeRedacted(t, cfg, "m",
		zap.String("pin", "1234"),
		zap.String("card", "card 4111111111111111"),
	)
	assert.Equal(t, "<hidden>", out["pin"])
	assert.Equal(t, "card <hidden>", out["card"])
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	base := newEncoder("json")
	enc, err := newRedactingEncoder(base, RedactionConfig{Enabled: false, Patterns: []string{"(unclosed"}})
	require.NoError(t, err)
	assert.Same(t, base, enc)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := newRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	zap.String("api_key", "sk-live").AddTo(child)

	buf, err := child.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{zap.String("user", "alice")})
	require.NoError(t, err)
	defer buf.Free()
	assert.NotContains(t, buf.String(), "sk-live")
	assert.Contains(t, buf.String(), `"user":"alice"`)
}

func TestNewRedactingEncoder_BadPatterns(t *testing.T) {
	_, err := newRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"(unclosed"}})
	assert.ErrorContains(t, err, "invalid redaction pattern")

	_, err = newRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{strings.Repeat("a", maxPatternLen+1)}})
	assert.ErrorContains(t, err, "too long")
}
