package telemetry

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-pulso/pipeline"
	"github.com/RyanBlaney/sonido-pulso/sensor"
)

// Forwarder is a pipeline listener that turns notifications into readings.
type Forwarder struct {
	client      *Client
	identity    Identity
	sampleEvery uint64
	signalSeen  atomic.Uint64
	activity    atomic.Pointer[string]
}

// NewForwarder forwards to client. Signal samples are thinned to one in
// sampleEvery; 0 drops them entirely.
func NewForwarder(client *Client, identity Identity, sampleEvery int) *Forwarder {
	return &Forwarder{
		client:      client,
		identity:    identity,
		sampleEvery: uint64(max(sampleEvery, 0)),
	}
}

// SetActivity labels every following reading with activity. An empty label
// clears it.
func (f *Forwarder) SetActivity(activity string) {
	f.activity.Store(&activity)
}

// Activity returns the current label.
func (f *Forwarder) Activity() string {
	if a := f.activity.Load(); a != nil {
		return *a
	}
	return ""
}

// OnEvent implements pipeline.Listener.
func (f *Forwarder) OnEvent(_ context.Context, event pipeline.Event) error {
	r, ok := f.reading(event)
	if !ok {
		return nil
	}
	f.client.Send(r)
	return nil
}

func (f *Forwarder) reading(event pipeline.Event) (Reading, bool) {
	r := Reading{Identity: f.identity, Kind: string(event.Kind()), Activity: f.Activity()}
	switch e := event.(type) {
	case pipeline.StepDetected:
		r.TimestampMs, r.Value = e.TimestampMs, e.Magnitude
	case pipeline.StepCountUpdated:
		r.Count, r.Value, r.WarmingUp = e.Count, float64(e.Cadence), e.WarmingUp
	case pipeline.HeartbeatDetected:
		r.TimestampMs, r.Value = e.TimestampMs, e.Value
	case pipeline.BpmUpdated:
		r.Value, r.WarmingUp = float64(e.Bpm), e.WarmingUp
	case pipeline.SignalSampled:
		if f.sampleEvery == 0 || (f.signalSeen.Add(1)-1)%f.sampleEvery != 0 {
			return Reading{}, false
		}
		r.Kind = string(event.Kind()) + "." + e.SensorName
		r.TimestampMs, r.Value = e.TimestampMs, e.Reduced
		if e.Sensor == sensor.TypeAccelerometer {
			r.Values = slices.Clone(e.Values)
		}
	default:
		return Reading{}, false
	}
	return r, true
}
