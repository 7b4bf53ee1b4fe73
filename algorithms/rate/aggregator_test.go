package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_TrailingMinute(t *testing.T) {
	a, err := NewAggregator(60_000)
	require.NoError(t, err)

	for _, ts := range []int64{0, 10_000, 20_000, 70_000, 80_000} {
		a.Add(ts)
	}
	removed := a.Evict(90_000)

	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, a.CurrentRate())
	assert.Equal(t, []int64{20_000, 70_000, 80_000}, a.Timestamps())
}

func TestAggregator_WindowTrailsNewestEvent(t *testing.T) {
	a, err := NewAggregator(60_000)
	require.NoError(t, err)

	for _, ts := range []int64{20_000, 70_000, 80_000} {
		a.Add(ts)
	}
	for _, now := range []int64{90_000, 120_000, 140_000} {
		a.Evict(now)
		assert.Equal(t, 3, a.CurrentRate(), "at %d", now)
	}

	// A full window without any event empties the queue.
	assert.Equal(t, 3, a.Evict(140_001))
	assert.Zero(t, a.CurrentRate())
	assert.Empty(t, a.Timestamps())

	a.Add(150_000)
	a.Evict(150_000)
	assert.Equal(t, []int64{150_000}, a.Timestamps())
}

func TestAggregator_BoundaryIsInclusive(t *testing.T) {
	a, err := NewAggregator(1000)
	require.NoError(t, err)
	a.Add(0)
	a.Evict(1000)
	assert.Equal(t, 1, a.CurrentRate(), "now-ts == window is retained")
	a.Evict(1001)
	assert.Equal(t, 0, a.CurrentRate())
}

func TestAggregator_WarmUp(t *testing.T) {
	a, err := NewAggregator(60_000)
	require.NoError(t, err)

	assert.True(t, a.WarmingUp(0))
	a.Evict(5_000)
	assert.True(t, a.WarmingUp(30_000))
	assert.False(t, a.WarmingUp(65_000))

	a.Reset()
	assert.True(t, a.WarmingUp(1_000_000))
}

func TestAggregator_IntervalRate(t *testing.T) {
	a, err := NewAggregator(60_000)
	require.NoError(t, err)

	_, _, ok := a.IntervalRate()
	assert.False(t, ok)

	// Beats every 800 ms is 75 per minute even after only four seconds.
	for ts := int64(0); ts <= 4000; ts += 800 {
		a.Add(ts)
	}
	a.Evict(4000)

	perWindow, std, ok := a.IntervalRate()
	require.True(t, ok)
	assert.InDelta(t, 75.0, perWindow, 1e-9)
	assert.InDelta(t, 0.0, std, 1e-9)
	assert.Equal(t, 6, a.CurrentRate())
}

func TestAggregator_StaysBoundedOverLongRuns(t *testing.T) {
	a, err := NewAggregator(10_000)
	require.NoError(t, err)

	for ts := int64(0); ts < 10_000_000; ts += 500 {
		a.Add(ts)
		a.Evict(ts)
		require.LessOrEqual(t, a.CurrentRate(), 21)
	}
	assert.Less(t, cap(a.queue), 256)
}

func TestNewAggregator_RejectsBadWindow(t *testing.T) {
	_, err := NewAggregator(0)
	assert.Error(t, err)
}
