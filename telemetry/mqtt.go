package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/paho"
)

// MQTTSink publishes readings as JSON with QoS 1.
type MQTTSink struct {
	client *paho.Client
	topic  string
}

// DialMQTT connects to an MQTT v5 broker at addr (host:port).
func DialMQTT(ctx context.Context, addr, clientID, topic string) (*MQTTSink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial mqtt broker %s: %w", addr, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
	})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect refused: reason code %d", ack.ReasonCode)
	}
	return &MQTTSink{client: client, topic: topic}, nil
}

func (s *MQTTSink) Write(ctx context.Context, r Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	_, err = s.client.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   s.topic,
		Payload: b,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.topic, err)
	}
	return nil
}

func (s *MQTTSink) Close() error {
	return s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
