package common

import "math"

// ParabolicOffset returns the sub-bin offset of a peak from its two neighbours
// by fitting a parabola through (left, center, right). The result lies in
// [-0.5, 0.5] for a true local maximum; a flat triple yields 0.
func ParabolicOffset(left, center, right float64) float64 {
	denom := left - 2.0*center + right
	if math.Abs(denom) <= 1e-12 {
		return 0.0
	}
	return 0.5 * (left - right) / denom
}
