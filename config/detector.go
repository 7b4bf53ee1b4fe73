package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-pulso/algorithms/filters"
	"github.com/RyanBlaney/sonido-pulso/algorithms/peaks"
	"github.com/RyanBlaney/sonido-pulso/pipeline"
)

// Duration accepts "500ms"-style strings or a bare number of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if ms, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Milliseconds returns the duration in whole milliseconds.
func (d Duration) Milliseconds() int64 {
	return time.Duration(d).Milliseconds()
}

// FilterConfig selects the conditioning filter.
type FilterConfig struct {
	Kind             string   `yaml:"kind"` // butterworth, exponential or none
	CutoffHz         float64  `yaml:"cutoff_hz"`
	TimeConstant     Duration `yaml:"time_constant"`
	BaselineCutoffHz float64  `yaml:"baseline_cutoff_hz"`
}

// DetectorConfig describes one detection pipeline.
type DetectorConfig struct {
	Enabled      bool         `yaml:"enabled"`
	SampleRateHz float64      `yaml:"sample_rate_hz"`
	Filter       FilterConfig `yaml:"filter"`

	Mode             string   `yaml:"mode"` // batch or streaming
	WindowSamples    int      `yaml:"window_samples"`
	WindowDuration   Duration `yaml:"window_duration"`
	MaxWindowEntries int      `yaml:"max_window_entries"`
	Delta            float64  `yaml:"delta_threshold"`
	MinInterval      Duration `yaml:"min_interval"`
	DedupeCapacity   int      `yaml:"dedupe_capacity"`

	RateWindow     Duration `yaml:"rate_window"`
	SpectralWindow Duration `yaml:"spectral_window"`
	EmitSignal     bool     `yaml:"emit_signal"`
	QueueSize      int      `yaml:"queue_size"`
}

// FilterSpec converts the filter section.
func (d DetectorConfig) FilterSpec() (filters.Spec, error) {
	kind, err := filters.ParseKind(d.Filter.Kind)
	if err != nil {
		return filters.Spec{}, err
	}
	return filters.Spec{
		Kind:             kind,
		SampleRate:       d.SampleRateHz,
		CutoffHz:         d.Filter.CutoffHz,
		TimeConstant:     time.Duration(d.Filter.TimeConstant).Seconds(),
		BaselineCutoffHz: d.Filter.BaselineCutoffHz,
	}, nil
}

// PeakConfig converts the detector parameters.
func (d DetectorConfig) PeakConfig() (peaks.Config, error) {
	mode, err := peaks.ParseMode(d.Mode)
	if err != nil {
		return peaks.Config{}, err
	}
	dedupe := d.DedupeCapacity
	if dedupe == 0 {
		dedupe = peaks.DefaultDedupeCapacity
	}
	cfg := peaks.Config{
		Mode:             mode,
		WindowSamples:    d.WindowSamples,
		WindowDuration:   d.WindowDuration.Milliseconds(),
		MaxWindowEntries: d.MaxWindowEntries,
		DeltaThreshold:   d.Delta,
		MinInterval:      d.MinInterval.Milliseconds(),
		DedupeCapacity:   dedupe,
	}
	return cfg, cfg.Validate()
}

// Pipeline builds a validated pipeline configuration.
func (d DetectorConfig) Pipeline(heartbeat bool) (pipeline.Config, error) {
	spec, err := d.FilterSpec()
	if err != nil {
		return pipeline.Config{}, err
	}
	peak, err := d.PeakConfig()
	if err != nil {
		return pipeline.Config{}, err
	}
	kind := pipeline.KindSteps
	if heartbeat {
		kind = pipeline.KindHeartbeat
	}
	cfg := pipeline.Config{
		Kind:           kind,
		Filter:         spec,
		Detector:       peak,
		RateWindow:     d.RateWindow.Milliseconds(),
		SpectralWindow: d.SpectralWindow.Milliseconds(),
		EmitSignal:     d.EmitSignal,
		QueueSize:      d.QueueSize,
	}
	return cfg, cfg.Validate()
}
