// Package sensor defines the samples delivered by the acquisition layer and
// the ingress checks applied before they reach a detection pipeline.
package sensor

import (
	"errors"
	"fmt"
	"math"
)

// Type identifies the sensor that produced a sample.
type Type int

const (
	TypeUnknown Type = iota
	TypeAccelerometer
	TypePPG
	// TypeStepCounter carries platform-detected steps; Values is empty.
	TypeStepCounter
)

func (t Type) String() string {
	switch t {
	case TypeAccelerometer:
		return "accelerometer"
	case TypePPG:
		return "ppg"
	case TypeStepCounter:
		return "step_counter"
	default:
		return "unknown"
	}
}

// NanosPerMilli converts sensor event timestamps to milliseconds.
const NanosPerMilli = int64(1_000_000)

// MaxMagnitude bounds any single channel value. Accelerometers report at most
// a few hundred m/s^2 and camera intensities are 0..255, so anything beyond
// this is a corrupted reading.
const MaxMagnitude = 1e6

var (
	ErrNonFinite  = errors.New("sample value is not finite")
	ErrOutOfRange = errors.New("sample value out of range")
	ErrNoValues   = errors.New("sample has no values")
)

// Sample is the normalized form every pipeline consumes. Timestamp is in
// milliseconds on the producer's monotonic clock.
type Sample struct {
	Type      Type
	Timestamp int64
	Values    []float64
}

// AccelSample is a raw accelerometer reading as delivered by the platform.
type AccelSample struct {
	TimestampNanos int64
	X, Y, Z        float32
}

// Sample converts to the normalized representation (ms timestamps).
func (a AccelSample) Sample() Sample {
	return Sample{
		Type:      TypeAccelerometer,
		Timestamp: a.TimestampNanos / NanosPerMilli,
		Values:    []float64{float64(a.X), float64(a.Y), float64(a.Z)},
	}
}

// PPGSample is the mean red intensity of one camera preview frame.
type PPGSample struct {
	TimestampMillis int64
	MeanIntensity   float64
}

// Sample converts to the normalized representation.
func (p PPGSample) Sample() Sample {
	return Sample{
		Type:      TypePPG,
		Timestamp: p.TimestampMillis,
		Values:    []float64{p.MeanIntensity},
	}
}

// StepCounterSample converts a platform step-detector tick.
func StepCounterSample(timestampMillis int64) Sample {
	return Sample{Type: TypeStepCounter, Timestamp: timestampMillis}
}

// Validate rejects samples that must never reach a filter.
func Validate(s Sample) error {
	if s.Type == TypeStepCounter {
		return nil
	}
	if len(s.Values) == 0 {
		return ErrNoValues
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("channel %d: %w", i, ErrNonFinite)
		}
		if math.Abs(v) > MaxMagnitude {
			return fmt.Errorf("channel %d (%g): %w", i, v, ErrOutOfRange)
		}
	}
	return nil
}
