package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-pulso/sensor"
)

func TestWalk_Samples(t *testing.T) {
	w := DefaultWalk()
	samples := w.Samples(10)
	require.Len(t, samples, 1000)

	assert.Equal(t, int64(0), samples[0].TimestampNanos)
	assert.Equal(t, int64(10*sensor.NanosPerMilli), samples[1].TimestampNanos)

	lo, hi := float32(100), float32(-100)
	for _, s := range samples {
		lo, hi = min(lo, s.X), max(hi, s.X)
		assert.Zero(t, s.Y)
	}
	assert.InDelta(t, 8, lo, 0.01)
	assert.InDelta(t, 12, hi, 0.01)
}

func TestPulse_DeterministicPerSeed(t *testing.T) {
	p := DefaultPulse()
	p.Seed = 42
	a := p.Samples(5)
	b := p.Samples(5)
	assert.Equal(t, a, b)

	p.Seed = 43
	c := p.Samples(5)
	assert.NotEqual(t, a, c)

	for _, s := range a {
		assert.GreaterOrEqual(t, s.MeanIntensity, 188.0)
		assert.LessOrEqual(t, s.MeanIntensity, 212.0)
	}
}

func TestSine(t *testing.T) {
	ts, vs := Sine(4, 1, 1, 0, 4)
	assert.Equal(t, []int64{0, 250, 500, 750}, ts)
	assert.InDeltaSlice(t, []float64{0, 1, 0, -1}, vs, 1e-9)
}
