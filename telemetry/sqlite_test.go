package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.db")
	sink, err := OpenSQLite(path)
	require.NoError(t, err)

	ctx := context.Background()
	id := Identity{UserID: "u", DeviceType: "sim", SessionID: "session-a"}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Write(ctx, Reading{Identity: id, Kind: "heartbeat_detected", TimestampMs: 830, Value: 204, RecordedAt: at}))
	require.NoError(t, sink.Write(ctx, Reading{Identity: id, Kind: "bpm_updated", Value: 72, WarmingUp: true, RecordedAt: at}))
	require.NoError(t, sink.Write(ctx, Reading{Identity: Identity{DeviceType: "sim", SessionID: "session-b"}, Kind: "bpm_updated", Value: 60, RecordedAt: at}))
	require.NoError(t, sink.Write(ctx, Reading{
		Identity: Identity{DeviceType: "sim", SessionID: "session-c"}, Kind: "signal_sampled.accelerometer",
		Activity: "walking", Values: []float64{0.5, 9.8, -0.25}, Value: 9.82, RecordedAt: at,
	}))

	all, err := sink.Readings(ctx, "session-a", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(830), all[0].TimestampMs)
	assert.Equal(t, "u", all[0].UserID)
	assert.True(t, at.Equal(all[0].RecordedAt))

	bpm, err := sink.Readings(ctx, "session-a", "bpm_updated")
	require.NoError(t, err)
	require.Len(t, bpm, 1)
	assert.Equal(t, 72.0, bpm[0].Value)
	assert.True(t, bpm[0].WarmingUp)
	assert.Empty(t, bpm[0].Activity)
	assert.Nil(t, bpm[0].Values)

	labelled, err := sink.Readings(ctx, "session-c", "")
	require.NoError(t, err)
	require.Len(t, labelled, 1)
	assert.Equal(t, "walking", labelled[0].Activity)
	assert.Equal(t, []float64{0.5, 9.8, -0.25}, labelled[0].Values)

	require.NoError(t, sink.Close())

	// Reopening keeps existing rows.
	again, err := OpenSQLite(path)
	require.NoError(t, err)
	defer again.Close()
	rows, err := again.Readings(ctx, "session-b", "")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
