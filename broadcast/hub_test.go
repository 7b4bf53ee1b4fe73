package broadcast

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/pipeline"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	h := NewHub(&logging.NoOpLogger{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	waitClients(t, h, 2)

	require.NoError(t, h.OnEvent(context.Background(), pipeline.HeartbeatDetected{TimestampMs: 830, Value: 204}))

	for _, conn := range []*websocket.Conn{a, b} {
		env := read(t, conn)
		assert.Equal(t, "heartbeat_detected", env.Type)
		var hb pipeline.HeartbeatDetected
		require.NoError(t, json.Unmarshal(env.Data, &hb))
		assert.Equal(t, int64(830), hb.TimestampMs)
	}
}

func TestHub_NewClientsReceiveLatestState(t *testing.T) {
	h := NewHub(&logging.NoOpLogger{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, h.OnEvent(ctx, pipeline.BpmUpdated{Bpm: 70}))
	require.NoError(t, h.OnEvent(ctx, pipeline.BpmUpdated{Bpm: 72}))
	require.NoError(t, h.OnEvent(ctx, pipeline.StepDetected{TimestampMs: 1}))

	conn := dial(t, srv)
	env := read(t, conn)
	assert.Equal(t, "bpm_updated", env.Type)
	var bpm pipeline.BpmUpdated
	require.NoError(t, json.Unmarshal(env.Data, &bpm))
	assert.Equal(t, 72, bpm.Bpm)
}

func TestHub_ForgetsDisconnectedClients(t *testing.T) {
	h := NewHub(&logging.NoOpLogger{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitClients(t, h, 1)
	require.NoError(t, conn.Close())
	waitClients(t, h, 0)

	dial(t, srv)
	waitClients(t, h, 1)
	h.Close()
	assert.Zero(t, h.Clients())
}
