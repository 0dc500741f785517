package spectral

import (
	"math"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
)

// PeakParams configures the dominant-peak estimator
type PeakParams struct {
	BinStart int     `json:"bin_start" mapstructure:"bin_start"`
	BinEnd   int     `json:"bin_end" mapstructure:"bin_end"`
	BinHz    float64 `json:"bin_hz" mapstructure:"bin_hz"`
	MaxHz    float64 `json:"max_hz" mapstructure:"max_hz"`
	LogK     float64 `json:"log_k" mapstructure:"log_k"`
}

// DefaultPeakParams returns the tuned defaults
func DefaultPeakParams() PeakParams {
	return PeakParams{
		BinStart: 2,
		BinEnd:   255,
		BinHz:    BinHz(DefaultSampleRate, DefaultWindowSize),
		MaxHz:    float64(DefaultSampleRate) / 2,
		LogK:     60.0,
	}
}

// Peak is the strongest bin in the search range
type Peak struct {
	Bin        int
	RefinedBin float64
	Hz         float64
	Magnitude  float64
}

// HzU16 returns the frequency rounded to whole Hz
func (p Peak) HzU16() uint16 {
	return uint16(p.Hz + 0.5)
}

// PeakEstimator finds the dominant spectral peak with sub-bin refinement
type PeakEstimator struct {
	params PeakParams
}

// NewPeakEstimator creates a new peak estimator
func NewPeakEstimator(params PeakParams) *PeakEstimator {
	return &PeakEstimator{params: params}
}

// Find scans the configured bin range. Parabolic refinement is applied only
// when the peak has a neighbour inside the range on both sides.
func (pe *PeakEstimator) Find(spec Spectrum) Peak {
	start, end := pe.params.BinStart, pe.params.BinEnd

	peakBin := start
	peakMag := 0.0
	for bin := start; bin <= end; bin++ {
		if mag := spec.Read(bin); mag > peakMag {
			peakMag = mag
			peakBin = bin
		}
	}

	refined := float64(peakBin)
	if peakBin > start && peakBin < end {
		refined += common.ParabolicOffset(spec.Read(peakBin-1), spec.Read(peakBin), spec.Read(peakBin+1))
	}

	return Peak{
		Bin:        peakBin,
		RefinedBin: refined,
		Hz:         common.Clamp(refined*pe.params.BinHz, 0, pe.params.MaxHz),
		Magnitude:  peakMag,
	}
}

// NormalizedMagnitude log-compresses a peak magnitude onto [0, 1]
func (pe *PeakEstimator) NormalizedMagnitude(p Peak) float64 {
	if math.IsNaN(p.Magnitude) {
		return 0.0
	}
	return common.LogCompress(p.Magnitude, pe.params.LogK)
}
