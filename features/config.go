package features

import (
	"fmt"

	"github.com/RyanBlaney/sonido-link/algorithms/chroma"
	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
	"github.com/RyanBlaney/sonido-link/algorithms/temporal"
	"github.com/RyanBlaney/sonido-link/protocol"
)

// Named band layouts
const (
	Layout12 = "bands12"
	Layout10 = "bands10"
)

// Config enumerates every tunable of the analysis pipeline
type Config struct {
	// Layout selects one of Layouts by name
	Layout  string                         `json:"layout" mapstructure:"layout"`
	Layouts map[string]spectral.BandLayout `json:"layouts" mapstructure:"layouts"`

	Bands  spectral.BandParams   `json:"bands" mapstructure:"bands"`
	Chroma chroma.Params         `json:"chroma" mapstructure:"chroma"`
	Vocal  temporal.VocalParams  `json:"vocal" mapstructure:"vocal"`
	Peak   spectral.PeakParams   `json:"peak" mapstructure:"peak"`
	Visual spectral.VisualParams `json:"visual" mapstructure:"visual"`

	// SilenceThreshold suppresses FEATURE frames while no smoothed band
	// exceeds it
	SilenceThreshold float64 `json:"silence_threshold" mapstructure:"silence_threshold"`
}

// DefaultConfig returns the tuned defaults with the 12-band layout active
func DefaultConfig() Config {
	return Config{
		Layout: Layout12,
		Layouts: map[string]spectral.BandLayout{
			Layout12: DefaultLayout12(),
			Layout10: DefaultLayout10(),
		},
		Bands:            spectral.DefaultBandParams(),
		Chroma:           chroma.DefaultParams(),
		Vocal:            temporal.DefaultVocalParams(),
		Peak:             spectral.DefaultPeakParams(),
		Visual:           spectral.DefaultVisualParams(),
		SilenceThreshold: 1e-8,
	}
}

// DefaultLayout12 spans ~43 Hz to ~20 kHz in 12 bands, octave-like above
// the bass region.
func DefaultLayout12() spectral.BandLayout {
	return spectral.BandLayout{
		Name: Layout12,
		Ranges: []spectral.BandRange{
			{Start: 1, End: 1}, {Start: 2, End: 2}, {Start: 3, End: 4}, {Start: 5, End: 7},
			{Start: 8, End: 20}, {Start: 21, End: 35}, {Start: 36, End: 55}, {Start: 56, End: 80},
			{Start: 81, End: 115}, {Start: 116, End: 155}, {Start: 156, End: 196}, {Start: 197, End: 464},
		},
		Tilt: []float64{1.0, 1.0, 1.05, 1.1, 1.15, 1.2, 1.3, 1.4, 1.5, 1.7, 1.85, 2.0},
	}
}

// DefaultLayout10 is the coarser 10-band grouping
func DefaultLayout10() spectral.BandLayout {
	return spectral.BandLayout{
		Name: Layout10,
		Ranges: []spectral.BandRange{
			{Start: 1, End: 1}, {Start: 2, End: 2}, {Start: 3, End: 4}, {Start: 5, End: 7},
			{Start: 8, End: 15}, {Start: 16, End: 29}, {Start: 30, End: 58}, {Start: 59, End: 116},
			{Start: 117, End: 232}, {Start: 233, End: 464},
		},
		Tilt: []float64{1.0, 1.0, 1.05, 1.1, 1.2, 1.3, 1.4, 1.6, 1.8, 2.0},
	}
}

// BandLayout resolves a layout by name
func (c Config) BandLayout(name string) (spectral.BandLayout, error) {
	layout, ok := c.Layouts[name]
	if !ok {
		return spectral.BandLayout{}, fmt.Errorf("unknown band layout %q", name)
	}
	layout.Name = name
	return layout, nil
}

// Validate checks every stage's parameters
func (c Config) Validate() error {
	if len(c.Layouts) == 0 {
		return fmt.Errorf("no band layouts configured")
	}
	for name, layout := range c.Layouts {
		if err := layout.Validate(); err != nil {
			return fmt.Errorf("layout %q: %w", name, err)
		}
		if len(layout.Ranges) > protocol.NumBands {
			return fmt.Errorf("layout %q has %d bands, the feature payload carries %d", name, len(layout.Ranges), protocol.NumBands)
		}
	}
	if _, err := c.BandLayout(c.Layout); err != nil {
		return err
	}
	if c.Bands.Smoothing < 0 || c.Bands.Smoothing >= 1 {
		return fmt.Errorf("band smoothing must be in [0, 1): %v", c.Bands.Smoothing)
	}
	if c.Chroma.Smoothing < 0 || c.Chroma.Smoothing >= 1 {
		return fmt.Errorf("chroma smoothing must be in [0, 1): %v", c.Chroma.Smoothing)
	}
	if err := c.Vocal.Validate(); err != nil {
		return fmt.Errorf("vocal: %w", err)
	}
	if c.Peak.BinEnd < c.Peak.BinStart {
		return fmt.Errorf("invalid peak bin range [%d, %d]", c.Peak.BinStart, c.Peak.BinEnd)
	}
	if len(c.Visual.Gains) != protocol.NumBands {
		return fmt.Errorf("visual gains must have %d entries, got %d", protocol.NumBands, len(c.Visual.Gains))
	}
	if err := c.Visual.Validate(); err != nil {
		return err
	}
	if c.SilenceThreshold < 0 {
		return fmt.Errorf("silence threshold must not be negative")
	}
	return nil
}
