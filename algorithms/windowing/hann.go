package windowing

import (
	"fmt"
	"math"
)

// Hann is a precomputed Hann taper. The periodic form (symmetric=false) is
// what the analysis front-end uses so that overlapping hops sum flat.
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
	coherentGain float64
}

// NewHann creates a new Hann window
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)
	if h.size == 0 {
		return
	}

	denominator := float64(h.size)
	if h.symmetric && h.size > 1 {
		denominator = float64(h.size - 1)
	}

	sum := 0.0
	for i := range h.size {
		c := 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
		h.coefficients[i] = c
		sum += c
	}
	h.coherentGain = sum / float64(h.size)
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range signal {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// CoherentGain is the mean coefficient; a sinusoid's spectral peak is scaled
// by this factor after windowing (0.5 for Hann).
func (h *Hann) CoherentGain() float64 {
	return h.coherentGain
}
