package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/pipeline"
	"github.com/RyanBlaney/sonido-pulso/sensor"
)

type memorySink struct {
	mu      sync.Mutex
	got     []Reading
	fail    error
	release chan struct{}
	closed  bool

	writing       atomic.Bool
	closedInWrite atomic.Bool
}

func (m *memorySink) Write(ctx context.Context, r Reading) error {
	m.writing.Store(true)
	defer m.writing.Store(false)
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	m.got = append(m.got, r)
	m.mu.Unlock()
	return nil
}

func (m *memorySink) Close() error {
	if m.writing.Load() {
		m.closedInWrite.Store(true)
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memorySink) readings() []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reading(nil), m.got...)
}

func closeClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
}

func TestNewIdentity(t *testing.T) {
	a := NewIdentity("u1", "android", "d1")
	b := NewIdentity("u1", "android", "d1")
	assert.NotEmpty(t, a.SessionID)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Equal(t, "android", a.DeviceType)
}

func TestClient_DeliversAndCloses(t *testing.T) {
	sink := &memorySink{}
	c := NewClient(sink, 16, WithClientLogger(&logging.NoOpLogger{}))

	for i := range 5 {
		assert.True(t, c.Send(Reading{Kind: "bpm_updated", Value: float64(70 + i)}))
	}
	closeClient(t, c)

	got := sink.readings()
	require.Len(t, got, 5)
	assert.Equal(t, 74.0, got[4].Value)
	assert.False(t, got[0].RecordedAt.IsZero())
	assert.True(t, sink.closed)
	assert.Equal(t, Stats{Sent: 5}, c.Stats())

	assert.False(t, c.Send(Reading{}), "closed client rejects readings")
	assert.ErrorIs(t, c.Close(context.Background()), ErrClosed)
}

func TestClient_DropsWhenFull(t *testing.T) {
	sink := &memorySink{release: make(chan struct{})}
	c := NewClient(sink, 1, WithClientLogger(&logging.NoOpLogger{}))

	accepted := 0
	for range 20 {
		if c.Send(Reading{Kind: "step_detected"}) {
			accepted++
		}
	}
	assert.Less(t, accepted, 20)
	assert.Equal(t, uint64(20-accepted), c.Stats().Dropped)

	close(sink.release)
	closeClient(t, c)
	assert.Len(t, sink.readings(), accepted)
}

func TestClient_CloseWaitsForWriteInProgress(t *testing.T) {
	sink := &memorySink{release: make(chan struct{})}
	c := NewClient(sink, 8, WithClientLogger(&logging.NoOpLogger{}))

	for range 3 {
		require.True(t, c.Send(Reading{Kind: "bpm_updated"}))
	}
	require.Eventually(t, sink.writing.Load, time.Second, time.Millisecond)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(sink.release)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Close(ctx), context.DeadlineExceeded)
	assert.True(t, sink.closed)
	assert.False(t, sink.closedInWrite.Load(), "sink closed under a running Write")
	assert.Equal(t, Stats{Sent: 1, Dropped: 2}, c.Stats())
}

func TestClient_LogsSinkErrors(t *testing.T) {
	rec := logging.NewRecorder()
	sink := &memorySink{fail: errors.New("collector down")}
	c := NewClient(sink, 4, WithClientLogger(rec))

	c.Send(Reading{Kind: "heartbeat_detected"})
	closeClient(t, c)

	assert.Equal(t, uint64(1), c.Stats().Failed)
	assert.Equal(t, []string{"failed to write telemetry reading"}, rec.Messages(logging.ErrorLevel))
}

func TestForwarder_LabelsActivityAndAxes(t *testing.T) {
	sink := &memorySink{}
	c := NewClient(sink, 16, WithClientLogger(&logging.NoOpLogger{}))
	f := NewForwarder(c, Identity{DeviceType: "sim", SessionID: "s"}, 1)
	assert.Empty(t, f.Activity())

	f.SetActivity("walking")
	require.NoError(t, f.OnEvent(context.Background(), pipeline.SignalSampled{
		Sensor: sensor.TypeAccelerometer, SensorName: "accelerometer", TimestampMs: 10,
		Values: []float64{0.1, 9.7, 0.3}, Reduced: 9.71,
	}))
	require.NoError(t, f.OnEvent(context.Background(), pipeline.SignalSampled{
		Sensor: sensor.TypePPG, SensorName: "ppg", TimestampMs: 20, Values: []float64{201}, Reduced: 201,
	}))
	f.SetActivity("")
	require.NoError(t, f.OnEvent(context.Background(), pipeline.StepDetected{TimestampMs: 30, Magnitude: 12}))
	closeClient(t, c)

	got := sink.readings()
	require.Len(t, got, 3)
	assert.Equal(t, "walking", got[0].Activity)
	assert.Equal(t, []float64{0.1, 9.7, 0.3}, got[0].Values)
	assert.Equal(t, 9.71, got[0].Value)
	assert.Equal(t, "walking", got[1].Activity)
	assert.Nil(t, got[1].Values, "single-channel signals report only the value")
	assert.Empty(t, got[2].Activity)
}

func TestForwarder_MapsEvents(t *testing.T) {
	sink := &memorySink{}
	c := NewClient(sink, 64, WithClientLogger(&logging.NoOpLogger{}))
	id := Identity{UserID: "u", DeviceType: "sim", SessionID: "s"}
	f := NewForwarder(c, id, 3)

	events := []pipeline.Event{
		pipeline.StepDetected{TimestampMs: 1000, Magnitude: 11.5},
		pipeline.StepCountUpdated{Count: 4, Cadence: 96, WarmingUp: true},
		pipeline.HeartbeatDetected{TimestampMs: 2000, Value: 204},
		pipeline.BpmUpdated{Bpm: 72},
	}
	for i := range 7 {
		events = append(events, pipeline.SignalSampled{
			Sensor: sensor.TypePPG, SensorName: "ppg", TimestampMs: int64(i), Reduced: float64(i),
		})
	}
	for _, e := range events {
		require.NoError(t, f.OnEvent(context.Background(), e))
	}
	closeClient(t, c)

	got := sink.readings()
	require.Len(t, got, 7)
	assert.Equal(t, "step_detected", got[0].Kind)
	assert.Equal(t, 11.5, got[0].Value)
	assert.Equal(t, 4, got[1].Count)
	assert.Equal(t, 96.0, got[1].Value)
	assert.True(t, got[1].WarmingUp)
	assert.Equal(t, int64(2000), got[2].TimestampMs)
	assert.Equal(t, 72.0, got[3].Value)
	for i, want := range []float64{0, 3, 6} {
		assert.Equal(t, "signal_sampled.ppg", got[4+i].Kind)
		assert.Equal(t, want, got[4+i].Value)
	}
	for _, r := range got {
		assert.Equal(t, id, r.Identity)
	}
}

type recordingPublisher struct {
	subject string
	data    [][]byte
	err     error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = append(p.data, data)
	return p.err
}

func TestNATSSink_PublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	sink := &NATSSink{pub: pub, subject: "pulso.telemetry"}

	r := Reading{
		Identity: Identity{DeviceType: "sim", SessionID: "abc"},
		Kind:     "bpm_updated",
		Value:    72,
	}
	require.NoError(t, sink.Write(context.Background(), r))
	require.Len(t, pub.data, 1)
	assert.Equal(t, "pulso.telemetry", pub.subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.data[0], &decoded))
	assert.Equal(t, "abc", decoded["session_id"])
	assert.Equal(t, "bpm_updated", decoded["kind"])
	assert.Equal(t, 72.0, decoded["value"])

	pub.err = errors.New("nats: connection closed")
	assert.Error(t, sink.Write(context.Background(), r))
	assert.NoError(t, sink.Close())
}
