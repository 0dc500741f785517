package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the feature stages. gonum backs the
// reductions so every stage aggregates the same way.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Sum returns the sum of the slice
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Sum(data)
}

// ArgMax returns the index of the largest element. Ties resolve to the lowest
// index. Returns -1 for an empty slice.
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// Max returns the largest element, or 0 for an empty slice
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// QuadraticMean is the root of the mean of squares, used for aggregate levels
func QuadraticMean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Smooth applies one step of a single-pole exponential filter:
// alpha*prev + (1-alpha)*next. alpha close to 1 means heavy smoothing.
func Smooth(prev, next, alpha float64) float64 {
	return alpha*prev + (1-alpha)*next
}

// LogCompress maps x >= 0 onto [0, 1] as log1p(k*x)/log1p(k), clamped.
func LogCompress(x, k float64) float64 {
	if k <= 0 {
		return Clamp(x, 0, 1)
	}
	return Clamp(math.Log1p(k*x)/math.Log1p(k), 0, 1)
}

// Quantize8 scales a unit value to a byte with rounding and saturation
func Quantize8(unit float64) uint8 {
	v := unit*255.0 + 0.5
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
