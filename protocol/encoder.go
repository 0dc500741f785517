package protocol

import (
	"encoding"
	"fmt"
	"io"
)

// Encoder frames payloads and keeps an independent sequence counter per
// frame type. Counters wrap at 256.
type Encoder struct {
	seq     map[Type]uint8
	metrics *Metrics
	buf     []byte
}

// NewEncoder creates an encoder; metrics may be nil
func NewEncoder(metrics *Metrics) *Encoder {
	return &Encoder{
		seq:     make(map[Type]uint8, len(Types)),
		metrics: metrics,
		buf:     make([]byte, 0, MaxFrameSize),
	}
}

// Encode returns a freshly allocated frame for a raw payload and advances
// the type's sequence counter.
func (e *Encoder) Encode(t Type, payload []byte) ([]byte, error) {
	frame, err := AppendFrame(nil, t, e.seq[t], payload)
	if err != nil {
		return nil, err
	}
	e.seq[t]++
	e.metrics.encoded(t)
	return frame, nil
}

// WriteTo encodes m as a frame of type t and writes it to w. The frame
// buffer is reused between calls.
func (e *Encoder) WriteTo(w io.Writer, t Type, m encoding.BinaryMarshaler) error {
	payload, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}

	e.buf, err = AppendFrame(e.buf[:0], t, e.seq[t], payload)
	if err != nil {
		return err
	}
	e.seq[t]++

	if _, err := w.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", t, err)
	}
	e.metrics.encoded(t)
	return nil
}

// NextSeq returns the sequence number the next frame of type t will carry
func (e *Encoder) NextSeq(t Type) uint8 {
	return e.seq[t]
}
