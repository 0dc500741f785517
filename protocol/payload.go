package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NumBands is the band count carried by FEATURE and AUX payloads
const NumBands = 12

// NoPitch is the sentinel for "no pitch class"
const NoPitch uint8 = 255

// FeaturePayload is the per-tick analysis snapshot.
//
//	[0..47]  12 x f32 LE band energies
//	[48] vocal envelope  [49] onset  [50] vocal note  [51] note strength
//	[52] lock  [53..64] chroma  [65] dominant pitch  [66] pitch strength
//	[67] sustain
type FeaturePayload struct {
	Bands         [NumBands]float32
	VocalEnvelope uint8
	Onset         bool
	VocalNote     uint8
	NoteStrength  uint8
	Locked        bool
	Chroma        [12]uint8
	DominantPitch uint8
	PitchStrength uint8
	Sustain       bool
}

// MarshalBinary encodes the payload into its fixed 68 byte layout
func (p FeaturePayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, FeaturePayloadSize)
	for i, v := range p.Bands {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	b[48] = p.VocalEnvelope
	b[49] = boolByte(p.Onset)
	b[50] = p.VocalNote
	b[51] = p.NoteStrength
	b[52] = boolByte(p.Locked)
	copy(b[53:65], p.Chroma[:])
	b[65] = p.DominantPitch
	b[66] = p.PitchStrength
	b[67] = boolByte(p.Sustain)
	return b, nil
}

// UnmarshalBinary decodes a 68 byte payload
func (p *FeaturePayload) UnmarshalBinary(b []byte) error {
	if len(b) != FeaturePayloadSize {
		return fmt.Errorf("%w: feature payload is %d bytes", ErrPayloadSize, len(b))
	}
	for i := range p.Bands {
		p.Bands[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	p.VocalEnvelope = b[48]
	p.Onset = b[49] != 0
	p.VocalNote = b[50]
	p.NoteStrength = b[51]
	p.Locked = b[52] != 0
	copy(p.Chroma[:], b[53:65])
	p.DominantPitch = b[65]
	p.PitchStrength = b[66]
	p.Sustain = b[67] != 0
	return nil
}

// AuxPayload carries display-ready levels alongside each FEATURE frame.
//
//	[0..11] levels  [12..23] deltas  [24] global  [25] bass  [26] mid
//	[27] treble  [28..29] peak Hz u16 LE  [30] peak magnitude  [31] flux
//	[32] peak detected  [33] active bands  [34..35] reserved
type AuxPayload struct {
	Levels        [NumBands]uint8
	Deltas        [NumBands]uint8
	Global        uint8
	Bass          uint8
	Mid           uint8
	Treble        uint8
	PeakHz        uint16
	PeakMagnitude uint8
	Flux          uint8
	PeakDetected  bool
	ActiveBands   uint8
}

// MarshalBinary encodes the payload into its fixed 36 byte layout
func (p AuxPayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, AuxPayloadSize)
	copy(b[0:12], p.Levels[:])
	copy(b[12:24], p.Deltas[:])
	b[24] = p.Global
	b[25] = p.Bass
	b[26] = p.Mid
	b[27] = p.Treble
	binary.LittleEndian.PutUint16(b[28:], p.PeakHz)
	b[30] = p.PeakMagnitude
	b[31] = p.Flux
	b[32] = boolByte(p.PeakDetected)
	b[33] = p.ActiveBands
	return b, nil
}

// UnmarshalBinary decodes a 36 byte payload
func (p *AuxPayload) UnmarshalBinary(b []byte) error {
	if len(b) != AuxPayloadSize {
		return fmt.Errorf("%w: aux payload is %d bytes", ErrPayloadSize, len(b))
	}
	copy(p.Levels[:], b[0:12])
	copy(p.Deltas[:], b[12:24])
	p.Global = b[24]
	p.Bass = b[25]
	p.Mid = b[26]
	p.Treble = b[27]
	p.PeakHz = binary.LittleEndian.Uint16(b[28:])
	p.PeakMagnitude = b[30]
	p.Flux = b[31]
	p.PeakDetected = b[32] != 0
	p.ActiveBands = b[33]
	return nil
}

// Mode is the renderer mode selected by a command
type Mode byte

const (
	ModeOff     Mode = '0'
	ModeSolid   Mode = 'S'
	ModePattern Mode = 'P'
	ModeMusic   Mode = 'M'
	ModeArt     Mode = 'A'
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeSolid, ModePattern, ModeMusic, ModeArt:
		return true
	}
	return false
}

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeSolid:
		return "solid"
	case ModePattern:
		return "pattern"
	case ModeMusic:
		return "music"
	case ModeArt:
		return "art"
	default:
		return fmt.Sprintf("mode(%q)", byte(m))
	}
}

// CommandPayload is a renderer control command.
//
//	[0] mode  [1] pattern  [2] color index  [3] brightness  [4..67] zero
type CommandPayload struct {
	Mode       Mode
	Pattern    uint8
	Color      uint8
	Brightness uint8
}

// MarshalBinary encodes the payload into its fixed 68 byte layout
func (p CommandPayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, CommandPayloadSize)
	b[0] = byte(p.Mode)
	b[1] = p.Pattern
	b[2] = p.Color
	b[3] = p.Brightness
	return b, nil
}

// UnmarshalBinary decodes a 68 byte payload
func (p *CommandPayload) UnmarshalBinary(b []byte) error {
	if len(b) != CommandPayloadSize {
		return fmt.Errorf("%w: command payload is %d bytes", ErrPayloadSize, len(b))
	}
	p.Mode = Mode(b[0])
	p.Pattern = b[1]
	p.Color = b[2]
	p.Brightness = b[3]
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
