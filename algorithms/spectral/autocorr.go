package spectral

import (
	"fmt"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
)

// AutocorrelationRate estimates the dominant period of values as the
// strongest local maximum of the normalized autocorrelation whose lag falls
// inside band. Prominence is the normalized correlation at that lag (1 for a
// perfectly periodic signal).
func AutocorrelationRate(values []float64, sampleRate float64, band Band) (Estimate, error) {
	if sampleRate <= 0 {
		return Estimate{}, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if band.MinHz <= 0 || band.MaxHz <= band.MinHz {
		return Estimate{}, fmt.Errorf("invalid band [%g, %g] Hz", band.MinHz, band.MaxHz)
	}

	minLag := max(int(sampleRate/band.MaxHz), 1)
	maxLag := int(sampleRate / band.MinHz)
	// Two full periods at the longest lag keep the estimate stable.
	if len(values) < MinSamples || len(values) < 2*maxLag {
		return Estimate{}, ErrTooShort
	}

	ac := autocorrelation(common.RemoveMean(values), maxLag+1)
	if ac[0] == 0 {
		return Estimate{}, nil
	}

	best, bestVal := 0, 0.0
	for lag := minLag; lag < maxLag; lag++ {
		if lag < 1 {
			continue
		}
		if ac[lag] > ac[lag-1] && ac[lag] >= ac[lag+1] && ac[lag] > bestVal {
			best, bestVal = lag, ac[lag]
		}
	}
	if best == 0 {
		return Estimate{}, nil
	}

	period := (float64(best) + parabolicOffset(ac[best-1], ac[best], ac[best+1])) / sampleRate
	hz := 1 / period
	return Estimate{FrequencyHz: hz, PerMinute: hz * 60, Prominence: bestVal}, nil
}

// autocorrelation returns the unbiased autocorrelation for lags [0, maxLag),
// normalized so that lag 0 is 1.
func autocorrelation(signal []float64, maxLag int) []float64 {
	maxLag = min(maxLag, len(signal))
	ac := make([]float64, maxLag)
	for lag := range ac {
		var sum float64
		n := len(signal) - lag
		for i := 0; i < n; i++ {
			sum += signal[i] * signal[i+lag]
		}
		if n > 0 {
			ac[lag] = sum / float64(n)
		}
	}
	if ac[0] > 0 {
		norm := ac[0]
		for i := range ac {
			ac[i] /= norm
		}
	}
	return ac
}
