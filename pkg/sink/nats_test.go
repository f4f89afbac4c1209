package sink

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/tracelog/pkg/record"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATS_Publishes(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("tracelog.records.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	s := NATS(nc, "")
	require.NoError(t, s.Log(context.Background(), sampleRecord(zapcore.InfoLevel, "Exiting OrderService.Ship")))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tracelog.records.info.OrderService", msg.Subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "Exiting OrderService.Ship", got["message"])
	assert.Equal(t, "c0ffee00", got["correlation_id"])

	require.NoError(t, s.Close())
	assert.True(t, nc.IsConnected(), "a borrowed connection stays open")
	assert.ErrorIs(t, s.Log(context.Background(), sampleRecord(zapcore.InfoLevel, "late")), ErrClosed)
}

func TestNATS_LevelWildcard(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	errs, err := nc.SubscribeSync("audit.error.*")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	s := NATS(nc, "audit")
	ctx := context.Background()
	require.NoError(t, s.Log(ctx, sampleRecord(zapcore.InfoLevel, "ok")))
	require.NoError(t, s.Log(ctx, sampleRecord(zapcore.ErrorLevel, "Exception in OrderService.Ship")))
	require.NoError(t, nc.Flush())

	msg, err := errs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "audit.error.OrderService", msg.Subject)

	_, err = errs.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout, "info records are not on the error subject")
}

func TestConnectNATS(t *testing.T) {
	server := startTestNATSServer(t)

	s, err := ConnectNATS(server.ClientURL(), "tracelog.records", WithMinLevel(zapcore.WarnLevel))
	require.NoError(t, err)
	assert.False(t, s.Enabled(zapcore.InfoLevel))
	assert.True(t, s.Enabled(zapcore.ErrorLevel))

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync("tracelog.records.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, s.Log(context.Background(), sampleRecord(zapcore.ErrorLevel, "boom")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	_, err = sub.NextMsg(2 * time.Second)
	assert.NoError(t, err, "close flushes pending records")
}

func TestNATS_WithAssembler(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("tracelog.records.info.Calc")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	a, err := record.NewAssembler(NATS(nc, ""))
	require.NoError(t, err)
	_, err = record.Invoke(context.Background(), a, record.Call{Type: "Calc", Method: "Add"},
		func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)

	for _, want := range []string{"Entering Calc.Add", "Exiting Calc.Add"} {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, want, got["message"])
	}
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "_", subjectToken(""))
	assert.Equal(t, "OrderService", subjectToken("OrderService"))
	assert.Equal(t, "_main_Order", subjectToken("*main.Order"))
	assert.Equal(t, "GET_/x", subjectToken("GET /x"))
}
