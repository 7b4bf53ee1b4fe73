// Package spectral estimates the dominant periodicity of a conditioned signal.
// It cross-checks the time-domain crossing detector: a cadence or BPM that
// disagrees strongly with the spectral peak usually means missed or doubled
// detections.
package spectral

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
)

// MinSamples is the shortest history DominantRate will analyse.
const MinSamples = 16

// ErrTooShort is returned when the history cannot resolve the search band.
var ErrTooShort = errors.New("history too short for spectral estimate")

// Band restricts the search to plausible rates, in Hz.
type Band struct {
	MinHz float64
	MaxHz float64
}

// StepBand covers walking and running cadence (0.5 to 4 steps per second).
var StepBand = Band{MinHz: 0.5, MaxHz: 4}

// HeartBand covers 40 to 220 bpm.
var HeartBand = Band{MinHz: 40.0 / 60, MaxHz: 220.0 / 60}

// Estimate is the strongest periodic component inside a band.
type Estimate struct {
	FrequencyHz float64
	PerMinute   float64
	// Prominence is the peak power over the mean power in the band. Values
	// near 1 mean there is no clear periodicity.
	Prominence float64
}

// DominantRate finds the strongest component of values, sampled uniformly at
// sampleRate Hz, inside band. The mean is removed and a Hann window applied
// before the transform; the input is not modified.
func DominantRate(values []float64, sampleRate float64, band Band) (Estimate, error) {
	if sampleRate <= 0 {
		return Estimate{}, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if band.MinHz < 0 || band.MaxHz <= band.MinHz {
		return Estimate{}, fmt.Errorf("invalid band [%g, %g] Hz", band.MinHz, band.MaxHz)
	}
	if len(values) < MinSamples {
		return Estimate{}, ErrTooShort
	}

	// Zero-pad to a power of two at least four times the input for a finer
	// bin spacing; the peak is refined further by parabolic interpolation.
	size := nextPow2(4 * len(values))
	frame := make([]float64, size)
	copy(frame, common.RemoveMean(values))
	window.Apply(frame[:len(values)], window.Hann)

	spectrum := fft.FFTReal(frame)
	binHz := sampleRate / float64(size)

	lo := int(math.Ceil(band.MinHz / binHz))
	hi := int(math.Floor(band.MaxHz / binHz))
	if lo < 1 {
		lo = 1
	}
	if hi > size/2-1 {
		hi = size/2 - 1
	}
	if hi-lo < 2 {
		return Estimate{}, ErrTooShort
	}

	power := make([]float64, size/2)
	for i := range power {
		m := cmplx.Abs(spectrum[i])
		power[i] = m * m
	}

	peak := lo
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += power[i]
		if power[i] > power[peak] {
			peak = i
		}
	}
	if sum == 0 {
		return Estimate{}, nil
	}

	bin := float64(peak) + parabolicOffset(power[peak-1], power[peak], power[peak+1])
	hz := bin * binHz
	return Estimate{
		FrequencyHz: hz,
		PerMinute:   hz * 60,
		Prominence:  power[peak] / (sum / float64(hi-lo+1)),
	}, nil
}

// SampleRateOf infers the mean sample rate of a timestamped history in Hz.
func SampleRateOf(entries []common.Entry) (float64, bool) {
	if len(entries) < 2 {
		return 0, false
	}
	span := entries[len(entries)-1].Timestamp - entries[0].Timestamp
	if span <= 0 {
		return 0, false
	}
	return float64(len(entries)-1) * 1000 / float64(span), true
}

// parabolicOffset fits a parabola through three neighbouring bins and returns
// the vertex offset from the centre bin, in [-0.5, 0.5].
func parabolicOffset(left, centre, right float64) float64 {
	denom := left - 2*centre + right
	if denom == 0 {
		return 0
	}
	off := 0.5 * (left - right) / denom
	return math.Max(-0.5, math.Min(0.5, off))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
