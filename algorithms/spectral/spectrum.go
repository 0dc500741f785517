package spectral

// Default analysis geometry of the audio front-end: a 1024-point window at
// 44.1 kHz, giving 512 usable bins of ~43.07 Hz.
const (
	DefaultSampleRate = 44100
	DefaultWindowSize = 1024
)

// Spectrum is the indexed bin-magnitude accessor supplied by the audio
// front-end for one analysis window.
type Spectrum interface {
	// Bins returns the number of readable bins
	Bins() int
	// Read returns the magnitude of a bin; out-of-range bins read as 0
	Read(bin int) float64
}

// FrontEnd is a Spectrum that also reports, once per tick, whether a new
// analysis window has been produced since the previous call.
type FrontEnd interface {
	Spectrum
	Available() bool
}

// LockReporter is implemented by front-ends that know whether their input
// clock is locked (e.g. a digital audio receiver PLL).
type LockReporter interface {
	Locked() bool
}

// Magnitudes is a slice-backed Spectrum
type Magnitudes []float64

func (m Magnitudes) Bins() int {
	return len(m)
}

func (m Magnitudes) Read(bin int) float64 {
	if bin < 0 || bin >= len(m) {
		return 0.0
	}
	return m[bin]
}

// BinHz returns the width of one bin in Hz
func BinHz(sampleRate, windowSize int) float64 {
	if windowSize <= 0 {
		return 0.0
	}
	return float64(sampleRate) / float64(windowSize)
}
