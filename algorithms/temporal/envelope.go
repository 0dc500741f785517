package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
)

// NoiseFloor tracks a slowly adapting background level. It seeds itself
// from the first non-negligible sample.
type NoiseFloor struct {
	alpha float64
	level float64
}

// NewNoiseFloor creates a tracker where alpha close to 1 adapts slowly
func NewNoiseFloor(alpha float64) *NoiseFloor {
	return &NoiseFloor{alpha: alpha}
}

// Update folds raw into the floor and returns the new level
func (nf *NoiseFloor) Update(raw float64) float64 {
	if nf.level <= 0.0001 {
		nf.level = raw
	} else {
		nf.level = common.Smooth(nf.level, raw, nf.alpha)
	}
	return nf.level
}

// Level returns the current floor
func (nf *NoiseFloor) Level() float64 {
	return nf.level
}

// Reset forgets the floor so the next sample reseeds it
func (nf *NoiseFloor) Reset() {
	nf.level = 0
}

// Envelope is an asymmetric one-pole follower: it moves towards a rising
// input by the attack coefficient and towards a falling input by the
// release coefficient.
type Envelope struct {
	attack  float64
	release float64
	value   float64
	prev    float64
}

// NewEnvelope creates a new envelope follower
func NewEnvelope(attack, release float64) *Envelope {
	return &Envelope{attack: attack, release: release}
}

// Update advances the follower and returns the new value
func (e *Envelope) Update(target float64) float64 {
	e.prev = e.value
	coeff := e.release
	if target > e.value {
		coeff = e.attack
	}
	e.value = math.Max(0, e.value+(target-e.value)*coeff)
	return e.value
}

// Value returns the current envelope
func (e *Envelope) Value() float64 {
	return e.value
}

// Delta returns the change produced by the last Update
func (e *Envelope) Delta() float64 {
	return e.value - e.prev
}

// Reset zeroes the follower
func (e *Envelope) Reset() {
	e.value = 0
	e.prev = 0
}
