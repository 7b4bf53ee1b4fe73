// Package peaks detects periodic events (steps, heartbeats) as upward
// crossings of an adaptive midline threshold.
package peaks

import (
	"fmt"
	"strings"
)

// Mode selects the evaluation strategy. A detector runs exactly one mode.
type Mode int

const (
	// ModeBatch fills a count-bounded window, scans it once against the
	// window's midline, then starts a new window.
	ModeBatch Mode = iota
	// ModeStreaming keeps a trailing duration window and tests the two most
	// recent samples against the midline on every sample.
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// ParseMode accepts "batch" or "streaming".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch":
		return ModeBatch, nil
	case "streaming", "stream":
		return ModeStreaming, nil
	default:
		return 0, fmt.Errorf("unknown detection mode %q", s)
	}
}

// Config holds detector parameters. Times are milliseconds.
type Config struct {
	Mode Mode

	// WindowSamples bounds the batch window.
	WindowSamples int
	// WindowDuration bounds the streaming window.
	WindowDuration int64
	// MaxWindowEntries caps streaming memory regardless of timestamps (0 = none).
	MaxWindowEntries int

	// DeltaThreshold is the minimum peak-to-peak amplitude a window needs
	// before any crossing is considered.
	DeltaThreshold float64

	// MinInterval is the refractory period between accepted events.
	MinInterval int64

	// DedupeCapacity is how many recent event timestamps are remembered for
	// duplicate suppression across window resets.
	DedupeCapacity int
}

// DefaultDedupeCapacity covers several minutes of heartbeats.
const DefaultDedupeCapacity = 512

// StepConfig returns batch settings for accelerometer steps sampled at
// sampleRate Hz: a one second window and a 0.5 s refractory period (no human
// steps faster than two per second).
func StepConfig(sampleRate float64) Config {
	return Config{
		Mode:           ModeBatch,
		WindowSamples:  int(sampleRate),
		DeltaThreshold: 3.0,
		MinInterval:    500,
		DedupeCapacity: DefaultDedupeCapacity,
	}
}

// HeartbeatConfig returns streaming settings for PPG: a 3 s trailing window
// and a refractory period equivalent to 220 bpm.
func HeartbeatConfig() Config {
	return Config{
		Mode:             ModeStreaming,
		WindowDuration:   3000,
		MaxWindowEntries: 1024,
		DeltaThreshold:   1.0,
		MinInterval:      MinIntervalForRate(220),
		DedupeCapacity:   DefaultDedupeCapacity,
	}
}

// MinIntervalForRate converts a maximum plausible rate (events per minute)
// into a refractory interval in ms.
func MinIntervalForRate(perMinute float64) int64 {
	if perMinute <= 0 {
		return 0
	}
	return int64(60_000 / perMinute)
}

// Validate checks that the parameters for the selected mode are usable.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeBatch:
		if c.WindowSamples < 2 {
			return fmt.Errorf("batch window needs at least 2 samples, got %d", c.WindowSamples)
		}
	case ModeStreaming:
		if c.WindowDuration <= 0 {
			return fmt.Errorf("streaming window duration must be positive, got %dms", c.WindowDuration)
		}
		if c.MaxWindowEntries < 0 {
			return fmt.Errorf("max window entries must not be negative")
		}
	default:
		return fmt.Errorf("unknown detection mode %d", c.Mode)
	}
	if c.DeltaThreshold < 0 {
		return fmt.Errorf("delta threshold must not be negative, got %g", c.DeltaThreshold)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("min interval must not be negative, got %dms", c.MinInterval)
	}
	if c.DedupeCapacity < 0 {
		return fmt.Errorf("dedupe capacity must not be negative")
	}
	return nil
}
