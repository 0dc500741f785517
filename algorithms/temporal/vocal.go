package temporal

import (
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
)

// NoNote marks the absence of a vocal note
const NoNote uint8 = 255

// VocalParams configures the vocal envelope and syllable detector
type VocalParams struct {
	BinStart        int           `json:"bin_start" mapstructure:"bin_start"`
	BinEnd          int           `json:"bin_end" mapstructure:"bin_end"`
	Gain            float64       `json:"gain" mapstructure:"gain"`
	Scale           float64       `json:"scale" mapstructure:"scale"`
	NoiseAlpha      float64       `json:"noise_alpha" mapstructure:"noise_alpha"`
	NoiseMargin     float64       `json:"noise_margin" mapstructure:"noise_margin"`
	Attack          float64       `json:"attack" mapstructure:"attack"`
	Release         float64       `json:"release" mapstructure:"release"`
	OnsetThreshold  float64       `json:"onset_threshold" mapstructure:"onset_threshold"`
	OnsetSlope      float64       `json:"onset_slope" mapstructure:"onset_slope"`
	OnsetMinGap     time.Duration `json:"onset_min_gap" mapstructure:"onset_min_gap"`
	NoteMinStrength uint8         `json:"note_min_strength" mapstructure:"note_min_strength"`
	CaptureTicks    int           `json:"capture_ticks" mapstructure:"capture_ticks"`
	SustainEngage   float64       `json:"sustain_engage" mapstructure:"sustain_engage"`
	SustainRelease  float64       `json:"sustain_release" mapstructure:"sustain_release"`
	SustainTicks    int           `json:"sustain_ticks" mapstructure:"sustain_ticks"`
}

// DefaultVocalParams returns the tuned defaults
func DefaultVocalParams() VocalParams {
	return VocalParams{
		BinStart:        2,
		BinEnd:          90,
		Gain:            4000.0,
		Scale:           1.8,
		NoiseAlpha:      0.995,
		NoiseMargin:     1.05,
		Attack:          0.45,
		Release:         0.12,
		OnsetThreshold:  0.12,
		OnsetSlope:      0.02,
		OnsetMinGap:     80 * time.Millisecond,
		NoteMinStrength: 40,
		CaptureTicks:    10,
		SustainEngage:   0.10,
		SustainRelease:  0.06,
		SustainTicks:    4,
	}
}

// Validate checks the parameters are usable
func (p VocalParams) Validate() error {
	if p.BinEnd < p.BinStart || p.BinStart < 0 {
		return fmt.Errorf("invalid vocal bin range [%d, %d]", p.BinStart, p.BinEnd)
	}
	if p.SustainRelease >= p.SustainEngage {
		return fmt.Errorf("sustain release (%v) must be below engage (%v)", p.SustainRelease, p.SustainEngage)
	}
	if p.SustainTicks < 1 {
		return fmt.Errorf("sustain ticks must be at least 1")
	}
	return nil
}

// Pitch is the dominant pitch class offered to the detector each tick
type Pitch struct {
	Class    uint8
	Strength uint8
}

// VocalResult is one tick of vocal detector output
type VocalResult struct {
	Level        float64
	Envelope     uint8
	Onset        bool
	Note         uint8
	NoteStrength uint8
	Sustain      bool
}

// VocalDetector follows vocal-band energy above a tracked noise floor,
// flags syllable onsets, attributes a pitch class to them, and holds a
// sustain state while a stable pitch is sung.
type VocalDetector struct {
	params  VocalParams
	floor   *NoiseFloor
	env     *Envelope
	onsets  *OnsetDetection
	sustain *sustainTracker

	note         uint8
	noteStrength uint8
	captureLeft  int
}

// NewVocalDetector creates a new vocal detector
func NewVocalDetector(params VocalParams) (*VocalDetector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &VocalDetector{
		params:  params,
		floor:   NewNoiseFloor(params.NoiseAlpha),
		env:     NewEnvelope(params.Attack, params.Release),
		onsets:  NewOnsetDetection(params.OnsetThreshold, params.OnsetSlope, params.OnsetMinGap),
		sustain: newSustainTracker(params.SustainEngage, params.SustainRelease, params.SustainTicks),
		note:    NoNote,
	}, nil
}

// Reset returns the detector to its initial state
func (vd *VocalDetector) Reset() {
	vd.floor.Reset()
	vd.env.Reset()
	vd.onsets.Reset()
	vd.sustain.reset()
	vd.note = NoNote
	vd.noteStrength = 0
	vd.captureLeft = 0
}

// Process computes the raw vocal-band level from the spectrum and advances
// one tick.
func (vd *VocalDetector) Process(spec spectral.Spectrum, pitch Pitch, now time.Time) VocalResult {
	sumEnergy := 0.0
	for bin := vd.params.BinStart; bin <= vd.params.BinEnd; bin++ {
		a := spec.Read(bin)
		sumEnergy += a * a
	}
	rms := math.Sqrt(sumEnergy / float64(vd.params.BinEnd-vd.params.BinStart+1))
	return vd.Update(rms*vd.params.Gain, pitch, now)
}

// Update advances one tick from a raw (gain-applied) vocal level
func (vd *VocalDetector) Update(raw float64, pitch Pitch, now time.Time) VocalResult {
	floor := vd.floor.Update(raw)
	gated := math.Max(0, raw-floor*vd.params.NoiseMargin)
	level := vd.env.Update(math.Min(1, gated*vd.params.Scale))

	cur := Pitch{Class: NoNote}
	if pitch.Class < 12 && pitch.Strength >= vd.params.NoteMinStrength {
		cur = pitch
	}

	onset := vd.onsets.Detect(level, vd.env.Delta(), now)
	switch {
	case onset:
		vd.captureLeft = vd.params.CaptureTicks
		if cur.Class != NoNote {
			vd.setNote(cur)
			vd.captureLeft = 0
		} else if !vd.sustain.active {
			vd.setNote(Pitch{Class: NoNote})
		}
	case vd.captureLeft > 0:
		if cur.Class != NoNote {
			vd.setNote(cur)
			vd.captureLeft = 0
		} else {
			vd.captureLeft--
		}
	}

	switch vd.sustain.update(level, cur.Class) {
	case sustainHeld:
		vd.setNote(cur)
	case sustainReleased:
		vd.setNote(Pitch{Class: NoNote})
	}

	return VocalResult{
		Level:        level,
		Envelope:     common.Quantize8(level),
		Onset:        onset,
		Note:         vd.note,
		NoteStrength: vd.noteStrength,
		Sustain:      vd.sustain.active,
	}
}

func (vd *VocalDetector) setNote(p Pitch) {
	vd.note = p.Class
	vd.noteStrength = p.Strength
	if p.Class == NoNote {
		vd.noteStrength = 0
	}
}

type sustainEvent int

const (
	sustainNone sustainEvent = iota
	sustainHeld
	sustainReleased
)

// sustainTracker is a hysteresis gate: a pitch class held for `ticks`
// consecutive ticks above `engage` enters sustain, and only a level at or
// below `release` leaves it.
type sustainTracker struct {
	engage    float64
	release   float64
	ticks     int
	candidate uint8
	stable    int
	active    bool
}

func newSustainTracker(engage, release float64, ticks int) *sustainTracker {
	return &sustainTracker{engage: engage, release: release, ticks: ticks, candidate: NoNote}
}

func (st *sustainTracker) update(level float64, class uint8) sustainEvent {
	if level >= st.engage && class != NoNote {
		if class == st.candidate {
			if st.stable < math.MaxUint8 {
				st.stable++
			}
		} else {
			st.candidate = class
			st.stable = 1
		}
		if st.stable >= st.ticks {
			st.active = true
			return sustainHeld
		}
		return sustainNone
	}
	if level <= st.release {
		st.reset()
		return sustainReleased
	}
	return sustainNone
}

func (st *sustainTracker) reset() {
	st.active = false
	st.candidate = NoNote
	st.stable = 0
}
