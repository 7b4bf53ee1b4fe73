package pipeline

import "github.com/RyanBlaney/sonido-pulso/sensor"

// EventKind names a notification type on the wire and in logs.
type EventKind string

const (
	KindStepDetected      EventKind = "step_detected"
	KindStepCountUpdated  EventKind = "step_count_updated"
	KindHeartbeatDetected EventKind = "heartbeat_detected"
	KindBpmUpdated        EventKind = "bpm_updated"
	KindSignalSampled     EventKind = "signal_sampled"
)

// Event is a notification delivered to listeners.
type Event interface {
	Kind() EventKind
}

// StepDetected is emitted once per detected step.
type StepDetected struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Magnitude   float64 `json:"magnitude"`
}

// StepCountUpdated follows every change of the step totals. Cadence is the
// number of steps in the trailing rate window (steps per minute with the
// default 60 s window). PlatformCount counts steps reported by a hardware
// step detector, kept separate from Count.
type StepCountUpdated struct {
	Count         int  `json:"count"`
	Cadence       int  `json:"cadence"`
	PlatformCount int  `json:"platform_count"`
	WarmingUp     bool `json:"warming_up"`
}

// HeartbeatDetected is emitted once per detected beat.
type HeartbeatDetected struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Value       float64 `json:"value"`
}

// BpmUpdated is emitted whenever the trailing-window beat count or its
// warm-up flag changes. While WarmingUp is set the value is provisional.
type BpmUpdated struct {
	Bpm       int  `json:"bpm"`
	WarmingUp bool `json:"warming_up"`
}

// SignalSampled carries the conditioned sample for live plotting.
type SignalSampled struct {
	Sensor      sensor.Type `json:"-"`
	SensorName  string      `json:"sensor"`
	TimestampMs int64       `json:"timestamp_ms"`
	Values      []float64   `json:"values"`
	Reduced     float64     `json:"reduced"`
}

func (StepDetected) Kind() EventKind      { return KindStepDetected }
func (StepCountUpdated) Kind() EventKind  { return KindStepCountUpdated }
func (HeartbeatDetected) Kind() EventKind { return KindHeartbeatDetected }
func (BpmUpdated) Kind() EventKind        { return KindBpmUpdated }
func (SignalSampled) Kind() EventKind     { return KindSignalSampled }
