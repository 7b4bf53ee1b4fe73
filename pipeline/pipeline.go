// Package pipeline wires conditioning, detection and rate aggregation for one
// sensor stream and notifies subscribed listeners of the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
	"github.com/RyanBlaney/sonido-pulso/algorithms/filters"
	"github.com/RyanBlaney/sonido-pulso/algorithms/peaks"
	"github.com/RyanBlaney/sonido-pulso/algorithms/rate"
	"github.com/RyanBlaney/sonido-pulso/algorithms/spectral"
	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/sensor"
)

var (
	// ErrStopped is returned by operations that need a running pipeline.
	ErrStopped = errors.New("pipeline stopped")
	// ErrSpectralDisabled is returned by SpectralRate without a spectral window.
	ErrSpectralDisabled = errors.New("spectral window disabled")
)

// Stats counts what happened to the samples fed into a pipeline.
type Stats struct {
	Samples          uint64
	Rejected         uint64
	Unsupported      uint64
	Delivered        uint64
	Dropped          uint64
	ListenerFailures uint64
	Detector         peaks.Stats
}

// Pipeline processes one sensor stream. Feed is meant to be called from a
// single producer goroutine; Stop and the accessors may be called from
// anywhere. Listener code must not call Stop, since Stop waits for the
// delivering goroutine.
type Pipeline struct {
	cfg    Config
	logger logging.Logger

	mu       sync.Mutex
	stopped  bool
	filter   *filters.VectorFilter
	reduce   filters.Reducer
	detector *peaks.Detector
	rate     *rate.Aggregator
	history  *common.WindowedBuffer

	platformSteps int
	lastSample    int64
	hasSample     bool
	lastRate      int
	lastWarming   bool
	reported      bool
	stats         Stats

	registry *Registry
	dispatch *dispatcher
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. The detector logs through it too.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New initializes a pipeline from cfg and starts its dispatcher.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s pipeline config: %w", cfg.Kind, err)
	}

	p := &Pipeline{
		cfg:      cfg,
		logger:   logging.Component("pipeline"),
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithFields(logging.Fields{"pipeline": cfg.Kind.String()})

	var err error
	if p.filter, err = filters.NewVectorFilter(cfg.Filter, cfg.Kind.channels()); err != nil {
		return nil, err
	}
	p.reduce = filters.First
	if cfg.Kind == KindSteps {
		p.reduce = filters.Magnitude
	}
	if p.detector, err = peaks.NewDetector(cfg.Detector, peaks.WithLogger(p.logger)); err != nil {
		return nil, err
	}
	if p.rate, err = rate.NewAggregator(cfg.RateWindow); err != nil {
		return nil, err
	}
	if cfg.SpectralWindow > 0 {
		// Allow for jitter in the producer's frame rate.
		maxEntries := int(float64(cfg.SpectralWindow)*cfg.Filter.SampleRate/1000)*2 + spectral.MinSamples
		if p.history, err = common.NewDurationWindow(cfg.SpectralWindow, maxEntries); err != nil {
			return nil, err
		}
	}

	p.dispatch = newDispatcher(p.registry, cfg.QueueSize, p.logger)
	p.logger.Debug("pipeline initialized", logging.Fields{
		"mode":        cfg.Detector.Mode.String(),
		"filter":      string(cfg.Filter.Kind),
		"rate_window": cfg.RateWindow,
	})
	return p, nil
}

// NewStepPipeline initializes a step pipeline from cfg.
func NewStepPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	cfg.Kind = KindSteps
	return New(cfg, opts...)
}

// NewHeartbeatPipeline initializes a heartbeat pipeline from cfg.
func NewHeartbeatPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	cfg.Kind = KindHeartbeat
	return New(cfg, opts...)
}

// Kind reports what the pipeline detects.
func (p *Pipeline) Kind() Kind {
	return p.cfg.Kind
}

// Subscribe registers l and returns its unsubscribe function.
func (p *Pipeline) Subscribe(name string, l Listener) (unsubscribe func()) {
	return p.registry.Subscribe(name, l)
}

// Feed processes one sample. Invalid and unsupported samples are dropped and
// logged; nothing is returned to the producer. After Stop it does nothing.
func (p *Pipeline) Feed(s sensor.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	if s.Type == sensor.TypeStepCounter && p.cfg.Kind == KindSteps {
		p.platformSteps++
		p.emitStepCount(s.Timestamp)
		return
	}
	if s.Type != p.cfg.Kind.Sensor() {
		p.stats.Unsupported++
		p.logger.Warn("sensor type not supported", logging.Fields{"sensor": s.Type.String()})
		return
	}
	if err := sensor.Validate(s); err != nil {
		p.stats.Rejected++
		p.logger.Debug("dropping invalid sample", logging.Fields{
			"timestamp": s.Timestamp,
			"error":     err.Error(),
		})
		return
	}
	if len(s.Values) != p.filter.Channels() {
		p.stats.Rejected++
		p.logger.Debug("dropping sample with wrong channel count", logging.Fields{
			"want": p.filter.Channels(),
			"got":  len(s.Values),
		})
		return
	}
	if p.hasSample && s.Timestamp < p.lastSample {
		p.restartStream(s.Timestamp)
	}
	p.stats.Samples++
	p.lastSample, p.hasSample = s.Timestamp, true

	conditioned := p.filter.Process(s.Values)
	value := p.reduce(conditioned)

	if p.cfg.EmitSignal {
		p.dispatch.enqueue(SignalSampled{
			Sensor:      s.Type,
			SensorName:  s.Type.String(),
			TimestampMs: s.Timestamp,
			Values:      slices.Clone(conditioned),
			Reduced:     value,
		})
	}
	if p.history != nil {
		p.history.Push(s.Timestamp, value)
		p.history.Evict(s.Timestamp)
	}

	events := p.detector.Push(s.Timestamp, value)
	for _, e := range events {
		p.rate.Add(e.Timestamp)
		switch p.cfg.Kind {
		case KindSteps:
			p.dispatch.enqueue(StepDetected{TimestampMs: e.Timestamp, Magnitude: e.Value})
		case KindHeartbeat:
			p.dispatch.enqueue(HeartbeatDetected{TimestampMs: e.Timestamp, Value: e.Value})
		}
	}
	p.rate.Evict(s.Timestamp)

	switch p.cfg.Kind {
	case KindSteps:
		if len(events) > 0 {
			p.emitStepCount(s.Timestamp)
		}
	case KindHeartbeat:
		p.emitBpmIfChanged(s.Timestamp)
	}
}

// restartStream drops everything tied to the old clock. The detector sees
// the same discontinuity and resets its own window.
func (p *Pipeline) restartStream(now int64) {
	p.logger.Info("clock discontinuity, restarting stream", logging.Fields{
		"last": p.lastSample,
		"now":  now,
	})
	p.filter.Reset()
	p.rate.Reset()
	if p.history != nil {
		p.history.Clear()
	}
	p.reported = false
}

// FeedAccel converts and feeds a raw accelerometer reading.
func (p *Pipeline) FeedAccel(a sensor.AccelSample) {
	p.Feed(a.Sample())
}

// FeedPPG converts and feeds a camera intensity reading.
func (p *Pipeline) FeedPPG(s sensor.PPGSample) {
	p.Feed(s.Sample())
}

func (p *Pipeline) emitStepCount(now int64) {
	p.dispatch.enqueue(StepCountUpdated{
		Count:         p.detector.Total(),
		Cadence:       p.rate.CurrentRate(),
		PlatformCount: p.platformSteps,
		WarmingUp:     p.rate.WarmingUp(now),
	})
}

func (p *Pipeline) emitBpmIfChanged(now int64) {
	bpm, warming := p.rate.CurrentRate(), p.rate.WarmingUp(now)
	if p.reported && bpm == p.lastRate && warming == p.lastWarming {
		return
	}
	if !p.reported && bpm == 0 {
		return
	}
	p.lastRate, p.lastWarming, p.reported = bpm, warming, true
	p.dispatch.enqueue(BpmUpdated{Bpm: bpm, WarmingUp: warming})
}

// StepCount returns detected steps and platform-reported steps.
func (p *Pipeline) StepCount() (detected, platform int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detector.Total(), p.platformSteps
}

// Rate returns the events in the trailing rate window (cadence or BPM) and
// whether that window has not yet filled.
func (p *Pipeline) Rate() (perWindow int, warmingUp bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.CurrentRate(), p.rate.WarmingUp(p.lastSample)
}

// IntervalRate estimates the rate from the mean inter-event interval, which
// is usable before the rate window has filled.
func (p *Pipeline) IntervalRate() (perWindow, stdDevMs float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.IntervalRate()
}

// SpectralRate estimates the dominant rate over the spectral history with
// an FFT.
func (p *Pipeline) SpectralRate() (spectral.Estimate, error) {
	return p.periodicity(spectral.DominantRate)
}

// AutocorrelationRate estimates the dominant rate over the spectral history
// from the signal's autocorrelation.
func (p *Pipeline) AutocorrelationRate() (spectral.Estimate, error) {
	return p.periodicity(spectral.AutocorrelationRate)
}

type estimator func(values []float64, sampleRate float64, band spectral.Band) (spectral.Estimate, error)

func (p *Pipeline) periodicity(estimate estimator) (spectral.Estimate, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return spectral.Estimate{}, ErrStopped
	}
	if p.history == nil {
		p.mu.Unlock()
		return spectral.Estimate{}, ErrSpectralDisabled
	}
	entries := p.history.Entries()
	p.mu.Unlock()

	fs, ok := spectral.SampleRateOf(entries)
	if !ok {
		return spectral.Estimate{}, spectral.ErrTooShort
	}
	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	band := spectral.StepBand
	if p.cfg.Kind == KindHeartbeat {
		band = spectral.HeartBand
	}
	return estimate(values, fs, band)
}

// Flush blocks until every notification queued so far has been delivered.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	return p.dispatch.flush(ctx)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	s.Detector = p.detector.Stats()
	p.mu.Unlock()

	s.Delivered = p.dispatch.delivered.Load()
	s.Dropped = p.dispatch.dropped.Load()
	s.ListenerFailures = p.dispatch.failures.Load()
	return s
}

// Stopped reports whether Stop has been called.
func (p *Pipeline) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Stop clears all detection state, removes every listener, discards
// undelivered notifications and waits for the dispatcher to exit. It is
// safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.filter.Reset()
	p.detector.Stop()
	p.rate.Reset()
	if p.history != nil {
		p.history.Clear()
	}
	p.platformSteps = 0
	p.lastSample, p.hasSample = 0, false
	p.reported = false
	p.registry.Clear()
	p.mu.Unlock()

	p.dispatch.stop()
	p.logger.Debug("pipeline stopped")
}
