package spectral

import (
	"fmt"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
)

// VisualParams configures the display-oriented band compressor
type VisualParams struct {
	Gains        []float64 `json:"gains" mapstructure:"gains"`
	Scale        float64   `json:"scale" mapstructure:"scale"`
	LogK         float64   `json:"log_k" mapstructure:"log_k"`
	Retain       float64   `json:"retain" mapstructure:"retain"`
	DeltaGain    float64   `json:"delta_gain" mapstructure:"delta_gain"`
	FluxGain     float64   `json:"flux_gain" mapstructure:"flux_gain"`
	PeakAvgAlpha float64   `json:"peak_avg_alpha" mapstructure:"peak_avg_alpha"`
	PeakRatio    float64   `json:"peak_ratio" mapstructure:"peak_ratio"`
	PeakMin      float64   `json:"peak_min" mapstructure:"peak_min"`
	Bass         []int     `json:"bass" mapstructure:"bass"`
	Mid          []int     `json:"mid" mapstructure:"mid"`
	Treble       []int     `json:"treble" mapstructure:"treble"`
}

// DefaultVisualParams returns the tuned defaults for 12 display bands
func DefaultVisualParams() VisualParams {
	return VisualParams{
		Gains:        []float64{1.0, 1.0, 1.05, 1.1, 1.1, 1.15, 1.25, 1.35, 1.5, 1.7, 1.9, 2.1},
		Scale:        0.005,
		LogK:         15.0,
		Retain:       0.7,
		DeltaGain:    4.0,
		FluxGain:     3.0,
		PeakAvgAlpha: 0.05,
		PeakRatio:    1.6,
		PeakMin:      0.05,
		Bass:         []int{0, 1, 2},
		Mid:          []int{3, 4, 5, 6, 7},
		Treble:       []int{8, 9, 10, 11},
	}
}

// Validate checks group indices fall inside the display bands
func (p VisualParams) Validate() error {
	if len(p.Gains) == 0 {
		return fmt.Errorf("visual gains must not be empty")
	}
	for name, group := range map[string][]int{"bass": p.Bass, "mid": p.Mid, "treble": p.Treble} {
		for _, idx := range group {
			if idx < 0 || idx >= len(p.Gains) {
				return fmt.Errorf("visual %s group index %d out of range", name, idx)
			}
		}
	}
	return nil
}

// VisualFrame holds one tick of display-ready levels, all on [0, 1]
type VisualFrame struct {
	Levels       []float64
	Deltas       []float64
	Global       float64
	Bass         float64
	Mid          float64
	Treble       float64
	Flux         float64
	PeakDetected bool
}

// VisualCompressor maps smoothed band energies onto perceptually compressed
// display levels, their rises, aggregate levels and a transient flag.
type VisualCompressor struct {
	params    VisualParams
	flux      *SpectralFlux
	levels    []float64
	prev      []float64
	rises     []float64
	group     []float64
	globalAvg float64
}

// NewVisualCompressor creates a new visual compressor
func NewVisualCompressor(params VisualParams) (*VisualCompressor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := len(params.Gains)
	return &VisualCompressor{
		params: params,
		flux:   NewSpectralFlux(),
		levels: make([]float64, n),
		prev:   make([]float64, n),
		rises:  make([]float64, n),
	}, nil
}

// Reset clears all level history including the peak baseline
func (vc *VisualCompressor) Reset() {
	clear(vc.levels)
	clear(vc.prev)
	clear(vc.rises)
	vc.globalAvg = 0
}

// Update advances one tick. Bands beyond len(bands) read as silent. The
// returned frame aliases internal buffers until the next call.
func (vc *VisualCompressor) Update(bands []float64) VisualFrame {
	p := vc.params
	copy(vc.prev, vc.levels)

	for i, gain := range p.Gains {
		raw := 0.0
		if i < len(bands) {
			raw = bands[i]
		}
		target := common.LogCompress(raw*gain*p.Scale, p.LogK)
		vc.levels[i] = common.Smooth(vc.prev[i], target, p.Retain)
	}
	riseSum := vc.flux.Rise(vc.prev, vc.levels, vc.rises)

	g := common.Clamp(common.QuadraticMean(vc.levels), 0, 1)

	if vc.globalAvg <= 0.0001 {
		vc.globalAvg = g
	} else {
		vc.globalAvg = common.Smooth(vc.globalAvg, g, 1-p.PeakAvgAlpha)
	}
	avg := g
	if vc.globalAvg > 0.0001 {
		avg = vc.globalAvg
	}

	return VisualFrame{
		Levels:       vc.levels,
		Deltas:       vc.rises,
		Global:       g,
		Bass:         vc.groupMean(p.Bass),
		Mid:          vc.groupMean(p.Mid),
		Treble:       vc.groupMean(p.Treble),
		Flux:         common.Clamp(riseSum*p.FluxGain, 0, 1),
		PeakDetected: g > avg*p.PeakRatio && g > p.PeakMin,
	}
}

func (vc *VisualCompressor) groupMean(group []int) float64 {
	if len(group) == 0 {
		return 0.0
	}
	vc.group = vc.group[:0]
	for _, idx := range group {
		vc.group = append(vc.group, vc.levels[idx])
	}
	return common.Mean(vc.group)
}

// DeltaByte quantizes a rise with the configured delta gain
func (vc *VisualCompressor) DeltaByte(delta float64) uint8 {
	return common.Quantize8(delta * vc.params.DeltaGain)
}
