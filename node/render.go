package node

import (
	"github.com/RyanBlaney/sonido-link/protocol"
)

// Renderer produces one output frame per receiver tick. It is a
// restartable generator: Reset is called when the control changes and
// Step never blocks, so the receiver services the link between steps.
type Renderer interface {
	Reset(ctl Control)
	Step(snap Snapshot) []uint8
}

// MeterRenderer maps the visual band levels onto a strip of pixels
// intensities. Solid lights every pixel, Off and missing input go dark.
type MeterRenderer struct {
	pixels []uint8
	ctl    Control
	frame  uint64
}

// NewMeterRenderer creates a renderer for n pixels
func NewMeterRenderer(n int) *MeterRenderer {
	return &MeterRenderer{pixels: make([]uint8, n)}
}

// Reset restarts the generator for ctl
func (m *MeterRenderer) Reset(ctl Control) {
	m.ctl = ctl
	m.frame = 0
	clear(m.pixels)
}

// Frames returns the number of steps since the last Reset
func (m *MeterRenderer) Frames() uint64 {
	return m.frame
}

// Step renders the next frame. The returned slice is reused.
func (m *MeterRenderer) Step(snap Snapshot) []uint8 {
	m.frame++
	switch m.ctl.Mode {
	case protocol.ModeOff:
		clear(m.pixels)

	case protocol.ModeMusic:
		if !snap.HaveAux {
			clear(m.pixels)
			break
		}
		bands := int(snap.Aux.ActiveBands)
		if bands <= 0 || bands > protocol.NumBands {
			bands = protocol.NumBands
		}
		for i := range m.pixels {
			band := i * bands / len(m.pixels)
			m.pixels[i] = scale(snap.Aux.Levels[band], m.ctl.Brightness)
		}

	default:
		for i := range m.pixels {
			m.pixels[i] = scale(255, m.ctl.Brightness)
		}
	}
	return m.pixels
}

// scale applies a 0-255 brightness level to v
func scale(v uint8, brightness int) uint8 {
	return uint8(int(v) * brightness / 255)
}
