package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrLengthMismatch means the declared length is not the fixed length of the declared type
	ErrLengthMismatch = errors.New("length mismatch")
	// ErrUnknownType means the type byte names no known frame type
	ErrUnknownType = errors.New("unknown frame type")
	// ErrFraming means the EOF marker is absent at the expected offset
	ErrFraming = errors.New("framing error")
	// ErrChecksum means the CRC did not match
	ErrChecksum = errors.New("checksum mismatch")
	// ErrStaleFrame means a partial frame timed out waiting for bytes
	ErrStaleFrame = errors.New("stale partial frame")
	// ErrPayloadSize means a payload passed to a codec has the wrong size
	ErrPayloadSize = errors.New("invalid payload size")
)

// DropError describes a discarded partial or complete frame
type DropError struct {
	Reason error
	Type   Type
	Length int
	// Discarded is the number of buffered bytes given up by the recovery
	Discarded int
}

func (e *DropError) Error() string {
	return fmt.Sprintf("frame dropped (type=%s len=%d discarded=%d): %v", e.Type, e.Length, e.Discarded, e.Reason)
}

func (e *DropError) Unwrap() error {
	return e.Reason
}

// reasonLabel names a drop reason for metrics and logs
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrFraming):
		return "framing"
	case errors.Is(err, ErrChecksum):
		return "checksum"
	case errors.Is(err, ErrStaleFrame):
		return "stale"
	default:
		return "other"
	}
}
