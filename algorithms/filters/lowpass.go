package filters

import (
	"math"
)

// LowPass is a first-order exponential smoother:
//
//	y[n] = y[n-1] + alpha * (x[n] - y[n-1])
//
// with alpha = dt / (RC + dt) and RC = 1 / (2*pi*fc).
type LowPass struct {
	alpha      float64
	sampleRate float64

	y1     float64
	seeded bool
}

// NewLowPass creates a smoother with the given -3dB cutoff.
func NewLowPass(sampleRate, cutoffHz float64) *LowPass {
	rc := 1.0 / (2.0 * math.Pi * cutoffHz)
	return newLowPassRC(sampleRate, rc)
}

// NewLowPassWithTimeConstant creates a smoother from a time constant (seconds).
func NewLowPassWithTimeConstant(sampleRate, tau float64) *LowPass {
	return newLowPassRC(sampleRate, tau)
}

func newLowPassRC(sampleRate, rc float64) *LowPass {
	dt := 1.0 / sampleRate
	return &LowPass{
		alpha:      dt / (rc + dt),
		sampleRate: sampleRate,
	}
}

// Process applies the smoother to a single sample. The first sample after
// construction or Reset passes through unchanged and seeds the state.
func (lp *LowPass) Process(input float64) float64 {
	if !lp.seeded {
		lp.y1 = input
		lp.seeded = true
		return input
	}
	lp.y1 += lp.alpha * (input - lp.y1)
	return lp.y1
}

// ProcessBuffer applies the smoother to an entire buffer of samples.
func (lp *LowPass) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = lp.Process(sample)
	}
	return output
}

func (lp *LowPass) Reset() {
	lp.y1 = 0
	lp.seeded = false
}

// Alpha returns the smoothing factor in (0, 1].
func (lp *LowPass) Alpha() float64 {
	return lp.alpha
}

// Butterworth is a second-order low-pass biquad (Q = 1/sqrt(2)).
//
// Coefficients follow Robert Bristow-Johnson's cookbook:
// https://webaudio.github.io/Audio-EQ-Cookbook/audio-eq-cookbook.html
type Butterworth struct {
	sampleRate float64
	cutoffFreq float64

	b0, b1, b2 float64
	a1, a2     float64

	// Direct form I state
	x1, x2 float64
	y1, y2 float64

	seeded bool
}

// NewButterworth creates a low-pass biquad with the given cutoff.
func NewButterworth(sampleRate, cutoffHz float64) *Butterworth {
	bw := &Butterworth{
		sampleRate: sampleRate,
		cutoffFreq: cutoffHz,
	}
	bw.computeCoefficients()
	return bw
}

func (bw *Butterworth) computeCoefficients() {
	w0 := 2.0 * math.Pi * bw.cutoffFreq / bw.sampleRate
	if w0 >= math.Pi {
		w0 = math.Pi * 0.99
	}

	cosW0 := math.Cos(w0)
	// alpha = sin(w0) / (2Q) with Q = 1/sqrt(2)
	alpha := math.Sin(w0) / math.Sqrt2

	a0 := 1.0 + alpha
	bw.b0 = (1.0 - cosW0) / 2.0 / a0
	bw.b1 = (1.0 - cosW0) / a0
	bw.b2 = bw.b0
	bw.a1 = -2.0 * cosW0 / a0
	bw.a2 = (1.0 - alpha) / a0
}

// Process applies the biquad to a single sample:
//
//	y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
//
// The first sample seeds the delay line at steady state (unity DC gain), so a
// signal riding on a large offset does not ring up from zero.
func (bw *Butterworth) Process(input float64) float64 {
	if !bw.seeded {
		bw.x1, bw.x2 = input, input
		bw.y1, bw.y2 = input, input
		bw.seeded = true
		return input
	}

	output := bw.b0*input + bw.b1*bw.x1 + bw.b2*bw.x2 - bw.a1*bw.y1 - bw.a2*bw.y2

	bw.x2 = bw.x1
	bw.x1 = input
	bw.y2 = bw.y1
	bw.y1 = output

	return output
}

func (bw *Butterworth) Reset() {
	bw.x1, bw.x2 = 0, 0
	bw.y1, bw.y2 = 0, 0
	bw.seeded = false
}

// GetMagnitudeResponse returns |H(e^jw)| at frequency (Hz).
func (bw *Butterworth) GetMagnitudeResponse(frequency float64) float64 {
	w := 2.0 * math.Pi * frequency / bw.sampleRate

	numReal := bw.b0 + bw.b1*math.Cos(w) + bw.b2*math.Cos(2*w)
	numImag := -bw.b1*math.Sin(w) - bw.b2*math.Sin(2*w)
	denReal := 1.0 + bw.a1*math.Cos(w) + bw.a2*math.Cos(2*w)
	denImag := -bw.a1*math.Sin(w) - bw.a2*math.Sin(2*w)

	return math.Hypot(numReal, numImag) / math.Hypot(denReal, denImag)
}
