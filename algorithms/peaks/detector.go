package peaks

import (
	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
	"github.com/RyanBlaney/sonido-pulso/logging"
)

// Stats counts what the detector did with its input.
type Stats struct {
	Samples              int
	Evaluations          int // windows (batch) or samples (streaming) tested
	FlatEvaluations      int
	Discontinuities      int
	SuppressedDuplicates int
	SuppressedRefractory int
}

// Detector finds upward crossings of an adaptive midline.
//
// Feed it with Push from a single goroutine. It never returns errors: flat
// input, discontinuities and suppressed crossings all simply yield no events.
type Detector struct {
	cfg    Config
	window *common.WindowedBuffer
	logger logging.Logger

	state        State
	threshold    Threshold
	hasThreshold bool

	// Batch mode: last sample of the previous scanned window, used as the
	// predecessor of the next window's first sample.
	carry    common.Entry
	hasCarry bool

	lastSample    int64
	hasLastSample bool

	lastEvent    int64
	hasLastEvent bool

	recent *recentSet
	total  int
	stats  Stats
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDetector validates cfg and allocates the detector's window.
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		window *common.WindowedBuffer
		err    error
	)
	switch cfg.Mode {
	case ModeBatch:
		window, err = common.NewCountWindow(cfg.WindowSamples)
	case ModeStreaming:
		window, err = common.NewDurationWindow(cfg.WindowDuration, cfg.MaxWindowEntries)
	}
	if err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:    cfg,
		window: window,
		logger: logging.Component("peaks"),
		state:  StateIdle,
		recent: newRecentSet(cfg.DedupeCapacity),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithFields(logging.Fields{"mode": cfg.Mode.String()})
	return d, nil
}

// Push ingests one sample and returns the events it completed, oldest first.
// After Stop it returns nil and retains nothing.
func (d *Detector) Push(timestamp int64, value float64) []Event {
	if d.state == StateStopped {
		return nil
	}

	if d.hasLastSample && timestamp < d.lastSample {
		d.stats.Discontinuities++
		d.logger.Debug("clock discontinuity, resetting window", logging.Fields{
			"last": d.lastSample,
			"now":  timestamp,
		})
		d.resetWindow()
	}
	d.lastSample = timestamp
	d.hasLastSample = true
	d.stats.Samples++

	d.window.Push(timestamp, value)
	d.state = StateAccumulating

	switch d.cfg.Mode {
	case ModeBatch:
		if !d.window.Full() {
			return nil
		}
		return d.scanWindow()
	default:
		d.window.Evict(timestamp)
		return d.evaluateLatest()
	}
}

// Evaluate re-runs detection over the current window without new input.
// Crossings that were already reported are suppressed, so calling it on an
// unchanged window yields nothing new.
func (d *Detector) Evaluate() []Event {
	if d.state == StateStopped {
		return nil
	}
	switch d.cfg.Mode {
	case ModeBatch:
		if !d.window.Full() {
			return nil
		}
		return d.scanWindow()
	default:
		return d.evaluateLatest()
	}
}

// scanWindow evaluates a full batch window once and starts a new one.
func (d *Detector) scanWindow() []Event {
	d.stats.Evaluations++
	defer d.startNextWindow()

	lo, _ := d.window.Min()
	hi, _ := d.window.Max()
	th := NewThreshold(lo, hi)
	if !th.Valid(d.cfg.DeltaThreshold) {
		d.stats.FlatEvaluations++
		return nil
	}
	d.threshold, d.hasThreshold = th, true
	d.state = StateThresholdValid

	d.state = StateScanning
	var events []Event

	start := 1
	prev := d.window.At(0)
	if d.hasCarry {
		start = 0
		prev = d.carry
	}
	for i := start; i < d.window.Size(); i++ {
		cur := d.window.At(i)
		if prev.Value <= th.Mid && th.Mid < cur.Value {
			if ev, ok := d.accept(cur); ok {
				events = append(events, ev)
			}
		}
		prev = cur
	}
	return events
}

func (d *Detector) startNextWindow() {
	if last, ok := d.window.Last(); ok {
		d.carry, d.hasCarry = last, true
	}
	d.window.Clear()
	if d.state != StateStopped {
		d.state = StateAccumulating
	}
}

// evaluateLatest tests the two newest samples against the current midline.
func (d *Detector) evaluateLatest() []Event {
	n := d.window.Size()
	if n < 2 {
		return nil
	}
	d.stats.Evaluations++

	lo, _ := d.window.Min()
	hi, _ := d.window.Max()
	th := NewThreshold(lo, hi)
	if !th.Valid(d.cfg.DeltaThreshold) {
		d.stats.FlatEvaluations++
		return nil
	}
	d.threshold, d.hasThreshold = th, true
	d.state = StateThresholdValid

	d.state = StateScanning
	defer func() { d.state = StateAccumulating }()

	prev, cur := d.window.At(n-2), d.window.At(n-1)
	if prev.Value < th.Mid && th.Mid <= cur.Value {
		if ev, ok := d.accept(cur); ok {
			return []Event{ev}
		}
	}
	return nil
}

// accept applies duplicate and refractory suppression to a crossing.
func (d *Detector) accept(e common.Entry) (Event, bool) {
	if d.recent.contains(e.Timestamp) || (d.hasLastEvent && e.Timestamp == d.lastEvent) {
		d.stats.SuppressedDuplicates++
		return Event{}, false
	}
	if d.hasLastEvent && e.Timestamp-d.lastEvent < d.cfg.MinInterval {
		d.stats.SuppressedRefractory++
		return Event{}, false
	}

	d.recent.add(e.Timestamp)
	d.lastEvent, d.hasLastEvent = e.Timestamp, true
	d.total++
	return Event{Timestamp: e.Timestamp, Value: e.Value}, true
}

// resetWindow drops buffered samples and the refractory reference. Recent
// event timestamps are kept so they stay unique across the reset.
func (d *Detector) resetWindow() {
	d.window.Clear()
	d.hasCarry = false
	d.hasLastSample = false
	d.hasLastEvent = false
	d.hasThreshold = false
	if d.state != StateStopped {
		d.state = StateAccumulating
	}
}

// Reset drops buffered samples, as after a sensor restart. Total, Stats and
// the recently reported timestamps survive it.
func (d *Detector) Reset() {
	d.resetWindow()
	if d.state != StateStopped {
		d.state = StateIdle
	}
}

// Stop clears every buffer and counter and makes further Push calls no-ops.
func (d *Detector) Stop() {
	d.resetWindow()
	d.recent.clear()
	d.total = 0
	d.stats = Stats{}
	d.state = StateStopped
}

// State returns the current position in the ingest cycle.
func (d *Detector) State() State {
	return d.state
}

// Threshold returns the most recent valid midline.
func (d *Detector) Threshold() (Threshold, bool) {
	return d.threshold, d.hasThreshold
}

// Total returns the number of events emitted since construction. It reads
// zero after Stop.
func (d *Detector) Total() int {
	return d.total
}

// Buffered returns how many samples the current window holds.
func (d *Detector) Buffered() int {
	return d.window.Size()
}

// Stats returns a copy of the detector counters.
func (d *Detector) Stats() Stats {
	return d.stats
}

// Config returns the configuration the detector was built with.
func (d *Detector) Config() Config {
	return d.cfg
}
