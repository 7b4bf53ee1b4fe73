package filters

import (
	"math"
)

// DCRemoval is a DC blocking filter (one-pole high-pass). In front of the PPG
// low-pass it strips the slow drift in camera exposure so the adaptive
// threshold tracks the pulse rather than the lighting.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
type DCRemoval struct {
	poleLocation float64 // R parameter (0 < R < 1)
	cutoffFreq   float64
	sampleRate   float64

	x1 float64 // x[n-1]
	y1 float64 // y[n-1]

	offset float64 // first input, added back so output stays in input units
	seeded bool
}

// NewDCRemovalWithCutoff creates a DC blocker with the given -3dB cutoff.
//
// The pole location R is calculated as R = 1 - 2*pi*fc/fs, valid for
// fc << fs/2.
func NewDCRemovalWithCutoff(sampleRate, cutoffFreq float64) *DCRemoval {
	dc := &DCRemoval{
		sampleRate: sampleRate,
		cutoffFreq: cutoffFreq,
	}
	dc.computePoleLocation()
	return dc
}

func (dc *DCRemoval) computePoleLocation() {
	dc.poleLocation = 1.0 - (2.0 * math.Pi * dc.cutoffFreq / dc.sampleRate)

	if dc.poleLocation >= 1.0 {
		dc.poleLocation = 0.999
	} else if dc.poleLocation <= 0.0 {
		dc.poleLocation = 0.001
	}
}

// Process implements y[n] = x[n] - x[n-1] + R * y[n-1]. The output is shifted
// by the first input seen so downstream amplitudes stay comparable to the raw
// signal's units.
func (dc *DCRemoval) Process(input float64) float64 {
	if !dc.seeded {
		dc.offset = input
		dc.x1 = input
		dc.y1 = 0
		dc.seeded = true
		return input
	}

	output := input - dc.x1 + dc.poleLocation*dc.y1

	dc.x1 = input
	dc.y1 = output

	return output + dc.offset
}

// Reset clears the filter's internal state.
// Call this when processing discontinuous segments.
func (dc *DCRemoval) Reset() {
	dc.x1 = 0.0
	dc.y1 = 0.0
	dc.offset = 0.0
	dc.seeded = false
}

// GetPoleLocation returns the current pole location parameter.
func (dc *DCRemoval) GetPoleLocation() float64 {
	return dc.poleLocation
}
