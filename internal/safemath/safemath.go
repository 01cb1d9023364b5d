// Package safemath implements arithmetic over metric values that may be
// unknown. The sentinel value -1 marks a value that could not be computed;
// every operator propagates it instead of producing a bogus number.
package safemath

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Unknown marks a value that could not be computed.
const Unknown float64 = -1

// unsafe reports whether v must be discarded as an operand. Zero is
// unsafe only for Min and as a denominator.
func unsafe(v float64) bool {
	return v == Unknown || v == 0
}

// Add adds two values. If either is unknown, the result is unknown.
func Add(a, b float64) float64 {
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return a + b
}

// Sub subtracts b from a. If either is unknown, the result is unknown.
func Sub(a, b float64) float64 {
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return a - b
}

// Mul multiplies two values. If either is unknown, the result is unknown.
func Mul(a, b float64) float64 {
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return a * b
}

// Div divides num by den. If num is unknown, or den is unknown or zero,
// the result is unknown.
func Div(num, den float64) float64 {
	if num == Unknown || unsafe(den) {
		return Unknown
	}
	return num / den
}

// Sqrt returns the square root of v, or unknown if v is unknown.
func Sqrt(v float64) float64 {
	if v == Unknown {
		return Unknown
	}
	return math.Sqrt(v)
}

// Min returns the smaller of two values. Unknown values and zeros are
// discarded; if both operands are discarded, the result is unknown.
func Min(a, b float64) float64 {
	switch {
	case unsafe(a) && unsafe(b):
		return Unknown
	case unsafe(a):
		return b
	case unsafe(b):
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// known returns the entries of vals[start..end] (inclusive) that are not
// unknown.
func known(vals []float64, start, end int) []float64 {
	if start < 0 {
		start = 0
	}
	if end >= len(vals) {
		end = len(vals) - 1
	}
	out := make([]float64, 0, end-start+1)
	for i := start; i <= end; i++ {
		if vals[i] != Unknown {
			out = append(out, vals[i])
		}
	}
	return out
}

// Sum sums vals[start..end] (inclusive), discarding unknown entries. The
// sum of an empty range is unknown.
func Sum(vals []float64, start, end int) float64 {
	safe := known(vals, start, end)
	if len(safe) == 0 {
		return Unknown
	}
	return floats.Sum(safe)
}

// Mean averages vals[start..end] (inclusive), discarding unknown entries.
// The mean of an empty range is unknown.
func Mean(vals []float64, start, end int) float64 {
	safe := known(vals, start, end)
	if len(safe) == 0 {
		return Unknown
	}
	return stat.Mean(safe, nil)
}

// UpdateEWMA folds a new sample into an exponentially weighted moving
// average. An unknown previous average is replaced by the sample
// unsmoothed; an unknown sample leaves the average unchanged.
func UpdateEWMA(prev, sample, alpha float64) float64 {
	if prev == Unknown {
		return sample
	}
	if sample == Unknown {
		return prev
	}
	return alpha*sample + (1-alpha)*prev
}
