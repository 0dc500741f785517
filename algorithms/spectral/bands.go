package spectral

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
)

// BandRange is an inclusive range of spectral bins
type BandRange struct {
	Start int `json:"start" mapstructure:"start"`
	End   int `json:"end" mapstructure:"end"`
}

// BandLayout groups bins into perceptual bands, each with a tilt gain that
// compensates for the natural high-frequency roll-off of music.
type BandLayout struct {
	Name   string      `json:"name" mapstructure:"name"`
	Ranges []BandRange `json:"ranges" mapstructure:"ranges"`
	Tilt   []float64   `json:"tilt" mapstructure:"tilt"`
}

// Validate checks the layout is well formed
func (l BandLayout) Validate() error {
	if len(l.Ranges) == 0 {
		return fmt.Errorf("band layout %q has no bands", l.Name)
	}
	if len(l.Tilt) != 0 && len(l.Tilt) != len(l.Ranges) {
		return fmt.Errorf("band layout %q: %d tilts for %d bands", l.Name, len(l.Tilt), len(l.Ranges))
	}
	for i, r := range l.Ranges {
		if r.Start < 0 || r.End < r.Start {
			return fmt.Errorf("band layout %q: band %d has invalid range [%d, %d]", l.Name, i, r.Start, r.End)
		}
	}
	return nil
}

func (l BandLayout) tilt(band int) float64 {
	if band < len(l.Tilt) {
		return l.Tilt[band]
	}
	return 1.0
}

// BandParams holds the band analyzer gains
type BandParams struct {
	// Smoothing is alpha in smoothed = alpha*prev + (1-alpha)*raw
	Smoothing       float64 `json:"smoothing" mapstructure:"smoothing"`
	CalibrationGain float64 `json:"calibration_gain" mapstructure:"calibration_gain"`
}

// DefaultBandParams returns the tuned defaults
func DefaultBandParams() BandParams {
	return BandParams{
		Smoothing:       0.15,
		CalibrationGain: 8000.0,
	}
}

// BandAnalyzer turns per-bin magnitudes into smoothed, tilt-corrected band
// energies. Output is unbounded and non-negative.
type BandAnalyzer struct {
	layout   BandLayout
	params   BandParams
	raw      []float64
	smoothed []float64
}

// NewBandAnalyzer creates a band analyzer for the given layout
func NewBandAnalyzer(layout BandLayout, params BandParams) (*BandAnalyzer, error) {
	if params.Smoothing < 0 || params.Smoothing >= 1 {
		return nil, fmt.Errorf("band smoothing must be in [0, 1): %v", params.Smoothing)
	}
	b := &BandAnalyzer{params: params}
	if err := b.Regroup(layout); err != nil {
		return nil, err
	}
	return b, nil
}

// Regroup switches to a new band layout. All smoothing state is cleared so
// values from the old grouping never bleed into the new one.
func (b *BandAnalyzer) Regroup(layout BandLayout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	b.layout = layout
	b.raw = make([]float64, len(layout.Ranges))
	b.smoothed = make([]float64, len(layout.Ranges))
	return nil
}

// Reset clears smoothing state without changing the layout
func (b *BandAnalyzer) Reset() {
	clear(b.raw)
	clear(b.smoothed)
}

// Process computes calibrated RMS energy per band from the spectrum and
// folds it into the smoothed output, which is returned. The slice is owned
// by the analyzer and valid until the next call.
func (b *BandAnalyzer) Process(spec Spectrum) []float64 {
	for band, r := range b.layout.Ranges {
		sumEnergy := 0.0
		for bin := r.Start; bin <= r.End; bin++ {
			a := spec.Read(bin)
			sumEnergy += a * a
		}
		binCount := float64(r.End - r.Start + 1)
		energy := math.Sqrt(sumEnergy / binCount)
		b.raw[band] = energy * b.params.CalibrationGain * b.layout.tilt(band)
	}
	return b.Update(b.raw)
}

// Update folds an already calibrated energy vector into the smoothed state
func (b *BandAnalyzer) Update(calibrated []float64) []float64 {
	for band := range b.smoothed {
		v := 0.0
		if band < len(calibrated) {
			v = math.Max(0, calibrated[band])
		}
		b.smoothed[band] = common.Smooth(b.smoothed[band], v, b.params.Smoothing)
	}
	return b.smoothed
}

// HasSignal reports whether any smoothed band exceeds threshold
func (b *BandAnalyzer) HasSignal(threshold float64) bool {
	return len(b.smoothed) > 0 && common.Max(b.smoothed) > threshold
}

// Smoothed returns the current smoothed band energies
func (b *BandAnalyzer) Smoothed() []float64 {
	return b.smoothed
}

// Raw returns the calibrated energies of the last processed spectrum
func (b *BandAnalyzer) Raw() []float64 {
	return b.raw
}

// Layout returns the active layout
func (b *BandAnalyzer) Layout() BandLayout {
	return b.layout
}

// NumBands returns the active band count
func (b *BandAnalyzer) NumBands() int {
	return len(b.layout.Ranges)
}
