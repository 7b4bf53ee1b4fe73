package filters

import (
	"math"
)

// VectorFilter applies an independent filter per channel. Accelerometer
// pipelines use three channels, PPG uses one.
type VectorFilter struct {
	channels []Filter
	out      []float64
}

// NewVectorFilter builds one filter per channel from the same spec.
func NewVectorFilter(spec Spec, channels int) (*VectorFilter, error) {
	vf := &VectorFilter{
		channels: make([]Filter, channels),
		out:      make([]float64, channels),
	}
	for i := range channels {
		f, err := New(spec)
		if err != nil {
			return nil, err
		}
		vf.channels[i] = f
	}
	return vf, nil
}

// Process filters values elementwise. The returned slice is reused by the
// next call; callers that keep it must copy. Extra input channels are dropped
// and missing ones are left at their previous output.
func (vf *VectorFilter) Process(values []float64) []float64 {
	n := min(len(values), len(vf.channels))
	for i := range n {
		vf.out[i] = vf.channels[i].Process(values[i])
	}
	return vf.out
}

// Channels returns the number of channels.
func (vf *VectorFilter) Channels() int {
	return len(vf.channels)
}

func (vf *VectorFilter) Reset() {
	for i, f := range vf.channels {
		f.Reset()
		vf.out[i] = 0
	}
}

// Reducer collapses a multi-channel sample to a scalar.
type Reducer func(values []float64) float64

// Magnitude is the Euclidean norm, used for tri-axis acceleration.
func Magnitude(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// First returns channel 0; scalar streams such as PPG use it.
func First(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}
