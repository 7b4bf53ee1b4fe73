// Package filters provides the stateful smoothing stages applied to every
// sample before detection.
package filters

import (
	"fmt"
	"strings"
)

// Filter is a single-channel, sample-at-a-time IIR stage.
type Filter interface {
	// Process consumes one input sample and returns the filtered output.
	Process(input float64) float64
	// Reset clears the delay line. The next sample re-seeds the state.
	Reset()
}

// Kind selects a low-pass design.
type Kind string

const (
	KindExponential Kind = "exponential"
	KindButterworth Kind = "butterworth"
	KindNone        Kind = "none"
)

// ParseKind accepts the config spelling of a filter kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindExponential, KindButterworth, KindNone:
		return k, nil
	case "":
		return KindButterworth, nil
	default:
		return "", fmt.Errorf("unknown filter kind %q", s)
	}
}

// Spec describes how to build a filter for one channel.
type Spec struct {
	Kind       Kind
	SampleRate float64 // Hz
	CutoffHz   float64
	// TimeConstant in seconds; only used by KindExponential when CutoffHz is 0.
	TimeConstant float64
	// BaselineCutoffHz enables a DC-removal stage in front of the low-pass.
	BaselineCutoffHz float64
}

// Validate checks the parameters without building anything.
func (s Spec) Validate() error {
	if s.Kind == KindNone {
		return nil
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", s.SampleRate)
	}
	switch s.Kind {
	case KindButterworth:
		if s.CutoffHz <= 0 || s.CutoffHz >= s.SampleRate/2 {
			return fmt.Errorf("butterworth cutoff must be between 0 and Nyquist (%g Hz), got %g", s.SampleRate/2, s.CutoffHz)
		}
	case KindExponential:
		if s.CutoffHz <= 0 && s.TimeConstant <= 0 {
			return fmt.Errorf("exponential filter needs a cutoff or a time constant")
		}
	default:
		return fmt.Errorf("unknown filter kind %q", s.Kind)
	}
	if s.BaselineCutoffHz < 0 || (s.BaselineCutoffHz > 0 && s.BaselineCutoffHz >= s.CutoffHz && s.CutoffHz > 0) {
		return fmt.Errorf("baseline cutoff %g Hz must be below the low-pass cutoff", s.BaselineCutoffHz)
	}
	return nil
}

// New builds a single-channel filter from spec.
func New(spec Spec) (Filter, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var lp Filter
	switch spec.Kind {
	case KindNone:
		return passthrough{}, nil
	case KindButterworth:
		lp = NewButterworth(spec.SampleRate, spec.CutoffHz)
	case KindExponential:
		if spec.CutoffHz > 0 {
			lp = NewLowPass(spec.SampleRate, spec.CutoffHz)
		} else {
			lp = NewLowPassWithTimeConstant(spec.SampleRate, spec.TimeConstant)
		}
	}

	if spec.BaselineCutoffHz > 0 {
		return Chain{NewDCRemovalWithCutoff(spec.SampleRate, spec.BaselineCutoffHz), lp}, nil
	}
	return lp, nil
}

// Chain runs filters in order.
type Chain []Filter

func (c Chain) Process(input float64) float64 {
	for _, f := range c {
		input = f.Process(input)
	}
	return input
}

func (c Chain) Reset() {
	for _, f := range c {
		f.Reset()
	}
}

type passthrough struct{}

func (passthrough) Process(input float64) float64 { return input }
func (passthrough) Reset()                        {}
