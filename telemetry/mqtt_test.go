package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return "127.0.0.1:" + strconv.Itoa(port)
}

// startBroker spins up an in-process MQTT broker.
func startBroker(t *testing.T) string {
	t.Helper()
	addr := freeAddr(t)

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })
	return addr
}

func subscribe(ctx context.Context, t *testing.T, addr, topic string) <-chan []byte {
	t.Helper()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	require.NoError(t, err)

	received := make(chan []byte, 16)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: "observer",
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				received <- pr.Packet.Payload
				return true, nil
			},
		},
	})
	_, err = client.Connect(ctx, &paho.Connect{ClientID: "observer", KeepAlive: 5, CleanStart: true})
	require.NoError(t, err)
	_, err = client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(&paho.Disconnect{}) })
	return received
}

func TestMQTTSink_PublishesToBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr := startBroker(t)
	received := subscribe(ctx, t, addr, "pulso/telemetry")

	sink, err := DialMQTT(ctx, addr, "pulsod-test", "pulso/telemetry")
	require.NoError(t, err)

	r := Reading{
		Identity: Identity{DeviceType: "sim", SessionID: "s-1"},
		Kind:     "heartbeat_detected",
		Value:    203.5,
	}
	require.NoError(t, sink.Write(ctx, r))

	select {
	case payload := <-received:
		var got Reading
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "s-1", got.SessionID)
		assert.Equal(t, "heartbeat_detected", got.Kind)
		assert.Equal(t, 203.5, got.Value)
	case <-ctx.Done():
		t.Fatal("reading never reached the subscriber")
	}

	assert.NoError(t, sink.Close())
}

func TestDialMQTT_NoBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := DialMQTT(ctx, freeAddr(t), "nobody", "t")
	assert.Error(t, err)
}
