package spectral

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
)

func sineWithNoise(fs, hz, seconds, noise float64, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed))
	n := int(fs * seconds)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / fs
		out[i] = 200 + 10*math.Sin(2*math.Pi*hz*t) + noise*(2*r.Float64()-1)
	}
	return out
}

func TestDominantRate(t *testing.T) {
	tests := []struct {
		name   string
		fs, hz float64
		band   Band
	}{
		{"heartbeat 72 bpm", 30, 1.2, HeartBand},
		{"heartbeat 150 bpm", 30, 2.5, HeartBand},
		{"cadence 2 Hz", 100, 2.0, StepBand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := sineWithNoise(tt.fs, tt.hz, 20, 2, 7)

			est, err := DominantRate(values, tt.fs, tt.band)
			require.NoError(t, err)
			assert.InDelta(t, tt.hz, est.FrequencyHz, 0.02)
			assert.InDelta(t, tt.hz*60, est.PerMinute, 1.2)
			assert.Greater(t, est.Prominence, 5.0)
		})
	}
}

func TestDominantRate_DoesNotModifyInput(t *testing.T) {
	values := sineWithNoise(30, 1.2, 10, 0, 1)
	orig := append([]float64(nil), values...)
	_, err := DominantRate(values, 30, HeartBand)
	require.NoError(t, err)
	assert.Equal(t, orig, values)
}

func TestDominantRate_Errors(t *testing.T) {
	_, err := DominantRate(make([]float64, 4), 30, HeartBand)
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = DominantRate(make([]float64, 64), 0, HeartBand)
	assert.Error(t, err)

	_, err = DominantRate(make([]float64, 64), 30, Band{MinHz: 2, MaxHz: 1})
	assert.Error(t, err)

	est, err := DominantRate(make([]float64, 64), 30, HeartBand)
	require.NoError(t, err, "silence is not an error")
	assert.Zero(t, est.FrequencyHz)
}

func TestSampleRateOf(t *testing.T) {
	entries := []common.Entry{{Timestamp: 0}, {Timestamp: 10}, {Timestamp: 20}, {Timestamp: 30}}
	fs, ok := SampleRateOf(entries)
	require.True(t, ok)
	assert.InDelta(t, 100.0, fs, 1e-9)

	_, ok = SampleRateOf(entries[:1])
	assert.False(t, ok)
}

func TestAutocorrelationRate(t *testing.T) {
	values := sineWithNoise(30, 1.2, 20, 2, 11)

	est, err := AutocorrelationRate(values, 30, HeartBand)
	require.NoError(t, err)
	assert.InDelta(t, 72, est.PerMinute, 3)
	assert.Greater(t, est.Prominence, 0.5)

	_, err = AutocorrelationRate(values[:40], 30, HeartBand)
	assert.ErrorIs(t, err, ErrTooShort)

	flat, err := AutocorrelationRate(make([]float64, 200), 30, HeartBand)
	require.NoError(t, err)
	assert.Zero(t, flat.PerMinute)
}
