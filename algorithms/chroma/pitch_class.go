package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
)

// NumPitchClasses is the size of a chroma vector
const NumPitchClasses = 12

// NoPitch marks the absence of a dominant pitch class
const NoPitch uint8 = 255

var pitchClassNames = [NumPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClassName returns the note name of a pitch class, or "--" for NoPitch
func PitchClassName(pc uint8) string {
	if int(pc) < NumPitchClasses {
		return pitchClassNames[pc]
	}
	return "--"
}

// Params configures the chroma extractor
type Params struct {
	BinStart int     `json:"bin_start" mapstructure:"bin_start"`
	BinEnd   int     `json:"bin_end" mapstructure:"bin_end"`
	BinHz    float64 `json:"bin_hz" mapstructure:"bin_hz"`
	// ReferenceHz is the frequency of pitch class 0 (C0)
	ReferenceHz float64 `json:"reference_hz" mapstructure:"reference_hz"`
	Smoothing   float64 `json:"smoothing" mapstructure:"smoothing"`
	// Floor is the minimum normalized (0-255) value of the argmax class
	Floor uint8 `json:"floor" mapstructure:"floor"`
	// MinRatio is the argmax/mean ratio a dominant class must exceed
	MinRatio float64 `json:"min_ratio" mapstructure:"min_ratio"`
}

// DefaultParams returns the tuned defaults
func DefaultParams() Params {
	return Params{
		BinStart:    2,
		BinEnd:      120,
		BinHz:       spectral.BinHz(spectral.DefaultSampleRate, spectral.DefaultWindowSize),
		ReferenceHz: 16.3516,
		Smoothing:   0.3,
		Floor:       30,
		MinRatio:    1.5,
	}
}

// Result is one tick of chroma output
type Result struct {
	Chroma   [NumPitchClasses]uint8
	Dominant uint8
	Strength uint8
}

// HasDominant reports whether a dominant class was found
func (r Result) HasDominant() bool {
	return r.Dominant < NumPitchClasses
}

// Extractor folds spectral energy into 12 pitch classes and selects a
// dominant class when it stands out clearly from the rest.
type Extractor struct {
	params   Params
	mapping  []int8 // bin -> pitch class, -1 for unmapped bins
	raw      [NumPitchClasses]float64
	smoothed [NumPitchClasses]float64
}

// NewExtractor creates a chroma extractor and precomputes the bin mapping
func NewExtractor(params Params) (*Extractor, error) {
	if params.BinStart < 1 || params.BinEnd < params.BinStart {
		return nil, fmt.Errorf("invalid chroma bin range [%d, %d]", params.BinStart, params.BinEnd)
	}
	if params.BinHz <= 0 || params.ReferenceHz <= 0 {
		return nil, fmt.Errorf("chroma bin and reference frequencies must be positive")
	}

	e := &Extractor{
		params:  params,
		mapping: make([]int8, params.BinEnd+1),
	}
	for bin := range e.mapping {
		e.mapping[bin] = -1
		if bin >= params.BinStart {
			e.mapping[bin] = int8(BinPitchClass(bin, params.BinHz, params.ReferenceHz))
		}
	}
	return e, nil
}

// BinPitchClass maps a bin to the pitch class nearest to its centre
// frequency.
func BinPitchClass(bin int, binHz, referenceHz float64) int {
	freq := float64(bin) * binHz
	semitones := 12.0 * math.Log2(freq/referenceHz)
	pc := int(math.Round(semitones)) % NumPitchClasses
	if pc < 0 {
		pc += NumPitchClasses
	}
	return pc
}

// Reset clears smoothing state
func (e *Extractor) Reset() {
	e.smoothed = [NumPitchClasses]float64{}
}

// Process runs one tick over the spectrum
func (e *Extractor) Process(spec spectral.Spectrum) Result {
	e.raw = [NumPitchClasses]float64{}
	for bin := e.params.BinStart; bin <= e.params.BinEnd; bin++ {
		if pc := e.mapping[bin]; pc >= 0 {
			mag := spec.Read(bin)
			e.raw[pc] += mag * mag
		}
	}

	for i := range e.smoothed {
		e.smoothed[i] = common.Smooth(e.smoothed[i], math.Sqrt(e.raw[i]), e.params.Smoothing)
	}
	maxChroma := common.Max(e.smoothed[:])
	total := common.Sum(e.smoothed[:])

	var res Result
	for i, v := range e.smoothed {
		if maxChroma > 0.001 {
			res.Chroma[i] = uint8(v / maxChroma * 255.0)
		}
	}

	maxIdx := 0
	for i := 1; i < NumPitchClasses; i++ {
		if res.Chroma[i] > res.Chroma[maxIdx] {
			maxIdx = i
		}
	}

	avg := total / NumPitchClasses
	ratio := 0.0
	if avg > 0.001 {
		ratio = e.smoothed[maxIdx] / avg
	}

	res.Dominant = NoPitch
	if res.Chroma[maxIdx] > e.params.Floor && ratio > e.params.MinRatio {
		res.Dominant = uint8(maxIdx)
		res.Strength = uint8(math.Min(255, (ratio-1.0)*100.0))
	}
	return res
}

// Smoothed returns the smoothed per-class amplitudes
func (e *Extractor) Smoothed() [NumPitchClasses]float64 {
	return e.smoothed
}
