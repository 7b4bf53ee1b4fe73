// Package ingest decodes sample frames arriving over NATS and feeds them to
// the detection pipelines.
package ingest

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/sensor"
)

// Feeder consumes normalized samples; *pipeline.Pipeline implements it.
type Feeder interface {
	Feed(s sensor.Sample)
}

// Decoder turns a message payload into samples.
type Decoder func(data []byte) ([]sensor.Sample, error)

// Accel decodes accelerometer frames.
func Accel(data []byte) ([]sensor.Sample, error) {
	raw, err := sensor.DecodeAccel(data)
	if err != nil {
		return nil, err
	}
	out := make([]sensor.Sample, len(raw))
	for i, a := range raw {
		out[i] = a.Sample()
	}
	return out, nil
}

// PPG decodes camera intensity frames.
func PPG(data []byte) ([]sensor.Sample, error) {
	raw, err := sensor.DecodePPG(data)
	if err != nil {
		return nil, err
	}
	out := make([]sensor.Sample, len(raw))
	for i, p := range raw {
		out[i] = p.Sample()
	}
	return out, nil
}

// Steps decodes platform step-counter frames.
func Steps(data []byte) ([]sensor.Sample, error) {
	return sensor.DecodeSteps(data)
}

// Route binds a subject to a decoder and the pipeline it feeds.
type Route struct {
	Subject string
	Decode  Decoder
	Feeder  Feeder
}

// Handler returns a NATS message handler for r. Malformed payloads are
// logged and skipped.
func (r Route) Handler(logger logging.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		samples, err := r.Decode(msg.Data)
		if err != nil {
			logger.Warn("dropping malformed frame", logging.Fields{
				"subject": msg.Subject,
				"bytes":   len(msg.Data),
				"error":   err.Error(),
			})
			return
		}
		for _, s := range samples {
			r.Feeder.Feed(s)
		}
	}
}

// Subscribe attaches every route to nc. NATS delivers each subscription's
// messages on its own goroutine in order, so each pipeline keeps a single
// producer as long as it is fed from one route.
func Subscribe(nc *nats.Conn, routes []Route, logger logging.Logger) ([]*nats.Subscription, error) {
	if logger == nil {
		logger = logging.Component("ingest")
	}
	subs := make([]*nats.Subscription, 0, len(routes))
	for _, r := range routes {
		sub, err := nc.Subscribe(r.Subject, r.Handler(logger))
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("failed to subscribe to %s: %w", r.Subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
