package pipeline

import (
	"fmt"

	"github.com/RyanBlaney/sonido-pulso/algorithms/filters"
	"github.com/RyanBlaney/sonido-pulso/algorithms/peaks"
	"github.com/RyanBlaney/sonido-pulso/sensor"
)

// Kind selects what a pipeline detects.
type Kind int

const (
	KindSteps Kind = iota
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSteps:
		return "steps"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Sensor is the sample type a pipeline of this kind consumes.
func (k Kind) Sensor() sensor.Type {
	switch k {
	case KindSteps:
		return sensor.TypeAccelerometer
	case KindHeartbeat:
		return sensor.TypePPG
	default:
		return sensor.TypeUnknown
	}
}

func (k Kind) channels() int {
	if k == KindSteps {
		return 3
	}
	return 1
}

// Config is everything Init needs. Times are milliseconds.
type Config struct {
	Kind     Kind
	Filter   filters.Spec
	Detector peaks.Config

	// RateWindow is the trailing window of the rate aggregator.
	RateWindow int64

	// SpectralWindow keeps that much conditioned history for SpectralRate;
	// 0 disables it.
	SpectralWindow int64

	// EmitSignal publishes a SignalSampled notification for every sample.
	EmitSignal bool

	// QueueSize bounds undelivered notifications (0 = DefaultQueueSize).
	QueueSize int
}

// DefaultStepConfig matches a 100 Hz accelerometer: 3 Hz Butterworth,
// one second batch windows and a one minute cadence window.
func DefaultStepConfig() Config {
	const fs = 100.0
	return Config{
		Kind:       KindSteps,
		Filter:     filters.Spec{Kind: filters.KindButterworth, SampleRate: fs, CutoffHz: 3},
		Detector:   peaks.StepConfig(fs),
		RateWindow: 60_000,
	}
}

// DefaultHeartbeatConfig matches a 30 fps camera: 4 Hz Butterworth, a 3 s
// streaming window and a one minute BPM window.
func DefaultHeartbeatConfig() Config {
	const fs = 30.0
	return Config{
		Kind:       KindHeartbeat,
		Filter:     filters.Spec{Kind: filters.KindButterworth, SampleRate: fs, CutoffHz: 4},
		Detector:   peaks.HeartbeatConfig(),
		RateWindow: 60_000,
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if c.Kind != KindSteps && c.Kind != KindHeartbeat {
		return fmt.Errorf("unknown pipeline kind %d", c.Kind)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate window must be positive, got %dms", c.RateWindow)
	}
	if c.SpectralWindow < 0 {
		return fmt.Errorf("spectral window must not be negative")
	}
	if c.SpectralWindow > 0 && c.Filter.SampleRate <= 0 {
		return fmt.Errorf("spectral window needs the filter sample rate")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative")
	}
	return nil
}
