// Package simulate generates synthetic sensor streams for tests, demos and
// the pulso-sim producer. Every generator is deterministic for a given seed.
package simulate

import (
	"math"
	"math/rand/v2"

	"github.com/RyanBlaney/sonido-pulso/sensor"
)

// Walk describes accelerometer data of a person walking at a steady cadence.
type Walk struct {
	SampleRate float64 // Hz
	CadenceHz  float64 // steps per second
	Baseline   float64 // magnitude at rest, m/s²
	Amplitude  float64 // half peak-to-peak of the step oscillation
	Noise      float64 // uniform noise bound per axis
	StartNanos int64
	Seed       uint64
}

// DefaultWalk is one step per second around 10 m/s², sampled at 100 Hz.
func DefaultWalk() Walk {
	return Walk{SampleRate: 100, CadenceHz: 1, Baseline: 10, Amplitude: 2}
}

// Samples returns duration seconds of accelerometer data. The oscillation is
// placed on the x axis; y and z carry only noise.
func (w Walk) Samples(seconds float64) []sensor.AccelSample {
	r := rand.New(rand.NewPCG(w.Seed, w.Seed^0x9e3779b97f4a7c15))
	n := int(w.SampleRate * seconds)
	out := make([]sensor.AccelSample, n)
	for i := range out {
		t := float64(i) / w.SampleRate
		x := w.Baseline + w.Amplitude*math.Sin(2*math.Pi*w.CadenceHz*t)
		out[i] = sensor.AccelSample{
			TimestampNanos: w.StartNanos + int64(math.Round(t*1e9)),
			X:              float32(x + uniform(r, w.Noise)),
			Y:              float32(uniform(r, w.Noise)),
			Z:              float32(uniform(r, w.Noise)),
		}
	}
	return out
}

// Pulse describes the mean frame intensity of a fingertip held over a camera.
type Pulse struct {
	SampleRate float64 // frames per second
	Bpm        float64
	Baseline   float64
	Amplitude  float64
	Noise      float64 // uniform noise bound
	Drift      float64 // linear baseline drift per second
	StartMs    int64
	Seed       uint64
}

// DefaultPulse is 72 bpm at 30 fps with noise up to 10% of peak-to-peak.
func DefaultPulse() Pulse {
	return Pulse{SampleRate: 30, Bpm: 72, Baseline: 200, Amplitude: 10, Noise: 2}
}

// Samples returns duration seconds of PPG frames.
func (p Pulse) Samples(seconds float64) []sensor.PPGSample {
	r := rand.New(rand.NewPCG(p.Seed, p.Seed^0xbf58476d1ce4e5b9))
	hz := p.Bpm / 60
	n := int(p.SampleRate * seconds)
	out := make([]sensor.PPGSample, n)
	for i := range out {
		t := float64(i) / p.SampleRate
		v := p.Baseline + p.Drift*t + p.Amplitude*math.Sin(2*math.Pi*hz*t)
		out[i] = sensor.PPGSample{
			TimestampMillis: p.StartMs + int64(math.Round(t*1000)),
			MeanIntensity:   v + uniform(r, p.Noise),
		}
	}
	return out
}

// Sine returns n samples of offset + amplitude*sin(2π·hz·t) at sampleRate,
// as (timestamp ms, value) pairs.
func Sine(sampleRate, hz, amplitude, offset float64, n int) (timestamps []int64, values []float64) {
	timestamps = make([]int64, n)
	values = make([]float64, n)
	for i := range n {
		t := float64(i) / sampleRate
		timestamps[i] = int64(math.Round(t * 1000))
		values[i] = offset + amplitude*math.Sin(2*math.Pi*hz*t)
	}
	return timestamps, values
}

func uniform(r *rand.Rand, bound float64) float64 {
	if bound == 0 {
		return 0
	}
	return bound * (2*r.Float64() - 1)
}
