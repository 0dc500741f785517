package protocol

import "fmt"

// Wire markers and sizes.
//
//	[SOF][type][seq][len][payload: len bytes][crc_lo][crc_hi][EOF]
const (
	SOF byte = 0xAA
	EOF byte = 0xBB

	HeaderSize  = 4
	TrailerSize = 3

	FeaturePayloadSize = 68
	CommandPayloadSize = 68
	AuxPayloadSize     = 36

	// MaxFrameSize is the largest frame any known type produces
	MaxFrameSize = HeaderSize + FeaturePayloadSize + TrailerSize
)

// Type identifies the payload carried by a frame
type Type uint8

const (
	TypeFeature Type = 0x01
	TypeCommand Type = 0x02
	TypeAux     Type = 0x03
)

// Types lists every known frame type
var Types = []Type{TypeFeature, TypeCommand, TypeAux}

func (t Type) String() string {
	switch t {
	case TypeFeature:
		return "feature"
	case TypeCommand:
		return "command"
	case TypeAux:
		return "aux"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// PayloadSize returns the fixed payload length of a frame type
func PayloadSize(t Type) (int, bool) {
	switch t {
	case TypeFeature:
		return FeaturePayloadSize, true
	case TypeCommand:
		return CommandPayloadSize, true
	case TypeAux:
		return AuxPayloadSize, true
	default:
		return 0, false
	}
}

// FrameSize returns the total on-wire size for a payload length
func FrameSize(payloadLen int) int {
	return HeaderSize + payloadLen + TrailerSize
}

// Frame is a decoded frame. Payload is owned by the frame.
type Frame struct {
	Type    Type
	Seq     uint8
	Payload []byte
}

// AppendFrame appends the wire encoding of a frame to dst. The payload must
// have exactly the fixed length of its type.
func AppendFrame(dst []byte, t Type, seq uint8, payload []byte) ([]byte, error) {
	want, ok := PayloadSize(t)
	if !ok {
		return dst, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	if len(payload) != want {
		return dst, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrPayloadSize, t, len(payload), want)
	}

	start := len(dst)
	dst = append(dst, SOF, byte(t), seq, byte(len(payload)))
	dst = append(dst, payload...)
	crc := Checksum(dst[start+1:])
	dst = append(dst, byte(crc), byte(crc>>8), EOF)
	return dst, nil
}
