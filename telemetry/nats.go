package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect dials NATS with reconnects enabled indefinitely.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// publisher is the part of *nats.Conn the sink needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes readings as JSON on a subject.
type NATSSink struct {
	pub     publisher
	subject string
	closer  func()
}

// NewNATSSink publishes on subject through nc. Closing the sink drains nc
// only when ownConn is set.
func NewNATSSink(nc *nats.Conn, subject string, ownConn bool) *NATSSink {
	s := &NATSSink{pub: nc, subject: subject}
	if ownConn {
		s.closer = func() { _ = nc.Drain() }
	}
	return s
}

func (s *NATSSink) Write(_ context.Context, r Reading) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	if err := s.pub.Publish(s.subject, b); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.subject, err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
