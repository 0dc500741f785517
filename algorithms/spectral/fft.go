package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps mjibson/go-dsp for the reference front-end. It owns a scratch
// buffer so repeated calls with the same window size do not allocate the
// magnitude slice.
type FFT struct {
	magnitudes []float64
}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the Fast Fourier Transform of a real signal
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// go-dsp handles all sizes, including non-power-of-2
	return fft.FFTReal(x)
}

// Magnitudes returns |X[k]|*scale for the positive-frequency bins 0..N/2-1.
// The returned slice is reused by the next call.
func (f *FFT) Magnitudes(x []float64, scale float64) []float64 {
	half := len(x) / 2
	if cap(f.magnitudes) < half {
		f.magnitudes = make([]float64, half)
	}
	f.magnitudes = f.magnitudes[:half]
	if half == 0 {
		return f.magnitudes
	}

	spectrum := f.Compute(x)
	for i := range half {
		f.magnitudes[i] = cmplx.Abs(spectrum[i]) * scale
	}

	return f.magnitudes
}
