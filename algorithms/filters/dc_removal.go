package filters

import (
	"math"
)

// DCRemoval is a one-pole DC blocker:
//
//	y[n] = x[n] - x[n-1] + R*y[n-1]
//
// Capture devices often carry a constant offset that would otherwise land
// in bin 0 and leak into the lowest band.
type DCRemoval struct {
	poleLocation float64 // R, 0 < R < 1

	// State variables
	x1 float64 // Previous input sample x[n-1]
	y1 float64 // Previous output sample y[n-1]
}

// NewDCRemovalWithCutoff creates a DC removal filter with the given -3 dB
// cutoff, using R = 1 - 2*pi*fc/fs.
func NewDCRemovalWithCutoff(sampleRate int, cutoffFreq float64) *DCRemoval {
	r := 0.995
	if sampleRate > 0 && cutoffFreq > 0 {
		r = 1.0 - (2.0 * math.Pi * cutoffFreq / float64(sampleRate))
	}
	// Clamp to valid range
	r = math.Min(math.Max(r, 0.001), 0.999999)
	return &DCRemoval{poleLocation: r}
}

// Process applies DC removal to a single sample
func (dc *DCRemoval) Process(input float64) float64 {
	output := input - dc.x1 + dc.poleLocation*dc.y1
	dc.x1 = input
	dc.y1 = output
	return output
}

// ProcessInPlace filters a buffer of consecutive samples
func (dc *DCRemoval) ProcessInPlace(samples []float64) {
	for i, s := range samples {
		samples[i] = dc.Process(s)
	}
}

// Reset clears the filter's internal state.
// Call this when processing discontinuous audio segments.
func (dc *DCRemoval) Reset() {
	dc.x1 = 0.0
	dc.y1 = 0.0
}

// PoleLocation returns R
func (dc *DCRemoval) PoleLocation() float64 {
	return dc.poleLocation
}

// Gain returns the magnitude response at frequency:
//
//	|H(e^jw)| = |1 - e^-jw| / |1 - R*e^-jw|
func (dc *DCRemoval) Gain(frequency float64, sampleRate int) float64 {
	w := 2.0 * math.Pi * frequency / float64(sampleRate)
	cosW, sinW := math.Cos(w), math.Sin(w)

	num := math.Hypot(1.0-cosW, sinW)
	den := math.Hypot(1.0-dc.poleLocation*cosW, dc.poleLocation*sinW)
	if den == 0 {
		return 0.0
	}
	return num / den
}
