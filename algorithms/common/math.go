package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistical helpers shared by the detection algorithms, backed by gonum.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// MinMax returns the extrema of data; ok is false for an empty slice.
func MinMax(data []float64) (lo, hi float64, ok bool) {
	if len(data) == 0 {
		return 0, 0, false
	}
	return floats.Min(data), floats.Max(data), true
}

// RemoveMean returns a copy of data with its mean subtracted.
func RemoveMean(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	floats.AddConst(-Mean(data), out)
	return out
}

// AllFinite reports whether no element is NaN or infinite.
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
