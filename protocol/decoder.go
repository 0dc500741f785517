package protocol

import (
	"bytes"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-link/logging"
)

// State is the decoder's externally visible parse state
type State int

const (
	SeekingSOF State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "seeking_sof"
}

// Handler receives every frame that passes validation. The frame's payload
// is a copy and may be retained.
type Handler interface {
	HandleFrame(f Frame)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(f Frame)

func (fn HandlerFunc) HandleFrame(f Frame) {
	fn(f)
}

// DecoderConfig holds decoder tunables
type DecoderConfig struct {
	// StaleTimeout clears a partial frame when no byte arrived for longer
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
	// Capacity preallocates the accumulation buffer
	Capacity int `mapstructure:"capacity"`
	// DropLogInterval is the minimum spacing of drop log lines after the
	// initial burst
	DropLogInterval time.Duration `mapstructure:"drop_log_interval"`
	DropLogBurst    int           `mapstructure:"drop_log_burst"`
}

// DefaultDecoderConfig returns the defaults
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		StaleTimeout:    10 * time.Millisecond,
		Capacity:        80,
		DropLogInterval: time.Second,
		DropLogBurst:    5,
	}
}

// Validate checks the configuration
func (c DecoderConfig) Validate() error {
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("stale timeout must be positive: %v", c.StaleTimeout)
	}
	if c.Capacity < MaxFrameSize {
		return fmt.Errorf("decoder capacity %d is below the largest frame (%d)", c.Capacity, MaxFrameSize)
	}
	return nil
}

// Stats are cumulative decoder counters
type Stats struct {
	Frames         map[Type]uint64
	LengthErrors   uint64
	TypeErrors     uint64
	FramingErrors  uint64
	ChecksumErrors uint64
	StaleDrops     uint64
	BytesDiscarded uint64
}

// Dropped returns the total number of drop events
func (s Stats) Dropped() uint64 {
	return s.LengthErrors + s.TypeErrors + s.FramingErrors + s.ChecksumErrors + s.StaleDrops
}

// DecoderOption customizes a Decoder
type DecoderOption func(*Decoder)

// WithMetrics records decoder activity in m
func WithMetrics(m *Metrics) DecoderOption {
	return func(d *Decoder) {
		d.metrics = m
	}
}

// WithLogger sets the decoder's logger
func WithLogger(l logging.Logger) DecoderOption {
	return func(d *Decoder) {
		d.logger = l
	}
}

// WithDropHook calls fn for every drop event
func WithDropHook(fn func(*DropError)) DecoderOption {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// Decoder reassembles frames from an unreliable byte stream.
//
// Bytes are discarded until a SOF marker starts a frame. Once the header is
// buffered the (type, length) pair is checked; once the full frame is
// buffered the EOF marker and CRC are checked. Any failure resyncs within
// the buffer: the buffer is shifted to the next SOF after position 0, or
// cleared if there is none, and the remainder is parsed again immediately.
// A partial frame that receives no byte for StaleTimeout is cleared
// outright. The stale check runs only on entry to Feed or Expire, never
// during a rescan or Append.
type Decoder struct {
	cfg      DecoderConfig
	handler  Handler
	buf      []byte
	lastByte time.Time
	stats    Stats
	metrics  *Metrics
	logger   logging.Logger
	dropLog  *logging.Sampled
	onDrop   func(*DropError)
}

// NewDecoder creates a decoder delivering frames to handler
func NewDecoder(cfg DecoderConfig, handler Handler, opts ...DecoderOption) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("decoder requires a frame handler")
	}

	d := &Decoder{
		cfg:     cfg,
		handler: handler,
		buf:     make([]byte, 0, cfg.Capacity),
		stats:   Stats{Frames: make(map[Type]uint64, len(Types))},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.WithFields(logging.Fields{"component": "frame_decoder"})
	}
	interval, burst := cfg.DropLogInterval, cfg.DropLogBurst
	if interval <= 0 {
		interval = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	d.dropLog = logging.NewSampled(d.logger, interval, burst)
	return d, nil
}

// State reports whether a partial frame is buffered
func (d *Decoder) State() State {
	if len(d.buf) == 0 {
		return SeekingSOF
	}
	return Accumulating
}

// Buffered returns the number of bytes held for the current partial frame
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Stats returns a snapshot of the cumulative counters
func (d *Decoder) Stats() Stats {
	s := d.stats
	s.Frames = make(map[Type]uint64, len(d.stats.Frames))
	for k, v := range d.stats.Frames {
		s.Frames[k] = v
	}
	return s
}

// Reset drops any partial frame without counting it
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Expire clears a stale partial frame. It reports whether one was cleared.
func (d *Decoder) Expire(now time.Time) bool {
	if len(d.buf) == 0 || now.Sub(d.lastByte) <= d.cfg.StaleTimeout {
		return false
	}
	e := &DropError{Reason: ErrStaleFrame, Discarded: len(d.buf)}
	if len(d.buf) > 1 {
		e.Type = Type(d.buf[1])
	}
	if len(d.buf) >= HeaderSize {
		e.Length = int(d.buf[3])
	}
	d.buf = d.buf[:0]
	d.stats.StaleDrops++
	d.drop(now, e)
	return true
}

// Feed consumes bytes received at time now and returns the number of
// frames delivered to the handler. A partial frame older than StaleTimeout
// is cleared first, so now must be the arrival time of data.
func (d *Decoder) Feed(data []byte, now time.Time) int {
	d.Expire(now)
	return d.Append(data, now)
}

// Append consumes bytes that arrived at some point up to now and continues
// any partial frame without a stale check. Pollers that cannot stamp
// individual bytes use Append for non-empty reads and Expire for empty ones.
func (d *Decoder) Append(data []byte, now time.Time) int {
	if len(data) == 0 {
		return 0
	}
	d.lastByte = now

	delivered := 0
	for len(data) > 0 {
		if len(d.buf) == 0 {
			i := bytes.IndexByte(data, SOF)
			if i < 0 {
				d.discard(len(data))
				return delivered
			}
			d.discard(i)
			data = data[i:]
		}

		// Append no more than what completes the frame in progress so that
		// validation always sees exactly one candidate frame.
		n := min(d.need(), len(data))
		d.buf = append(d.buf, data[:n]...)
		data = data[n:]
		delivered += d.drain(now)
	}
	return delivered
}

// need returns how many more bytes the candidate at buf[0] can use
func (d *Decoder) need() int {
	if len(d.buf) < HeaderSize {
		return HeaderSize - len(d.buf)
	}
	want, ok := PayloadSize(Type(d.buf[1]))
	if !ok || int(d.buf[3]) != want {
		return 1
	}
	return max(1, FrameSize(want)-len(d.buf))
}

// drain validates the buffer until it holds an incomplete candidate frame
// or nothing.
func (d *Decoder) drain(now time.Time) int {
	delivered := 0
	for len(d.buf) >= HeaderSize {
		t := Type(d.buf[1])
		length := int(d.buf[3])

		want, ok := PayloadSize(t)
		if !ok {
			d.stats.TypeErrors++
			d.resync(now, ErrUnknownType, t, length)
			continue
		}
		if length != want {
			d.stats.LengthErrors++
			d.resync(now, ErrLengthMismatch, t, length)
			continue
		}

		size := FrameSize(length)
		if len(d.buf) < size {
			return delivered
		}
		if d.buf[size-1] != EOF {
			d.stats.FramingErrors++
			d.resync(now, ErrFraming, t, length)
			continue
		}

		got := uint16(d.buf[HeaderSize+length]) | uint16(d.buf[HeaderSize+length+1])<<8
		if got != Checksum(d.buf[1:HeaderSize+length]) {
			d.stats.ChecksumErrors++
			d.resync(now, ErrChecksum, t, length)
			continue
		}

		f := Frame{
			Type:    t,
			Seq:     d.buf[2],
			Payload: append([]byte(nil), d.buf[HeaderSize:HeaderSize+length]...),
		}
		d.consume(size)
		d.stats.Frames[t]++
		d.metrics.decoded(t)
		d.handler.HandleFrame(f)
		delivered++
	}
	return delivered
}

// consume removes n leading bytes and realigns any remainder on a SOF
func (d *Decoder) consume(n int) {
	rest := d.buf[n:]
	i := bytes.IndexByte(rest, SOF)
	if i < 0 {
		d.discard(len(rest))
		d.buf = d.buf[:0]
		return
	}
	d.discard(i)
	d.buf = d.buf[:copy(d.buf, rest[i:])]
}

// resync drops buf[0] and everything before the next SOF
func (d *Decoder) resync(now time.Time, reason error, t Type, length int) {
	before := len(d.buf)
	i := bytes.IndexByte(d.buf[1:], SOF)
	if i < 0 {
		d.buf = d.buf[:0]
	} else {
		d.buf = d.buf[:copy(d.buf, d.buf[1+i:])]
	}
	d.drop(now, &DropError{Reason: reason, Type: t, Length: length, Discarded: before - len(d.buf)})
}

func (d *Decoder) drop(now time.Time, e *DropError) {
	d.discard(e.Discarded)
	d.metrics.dropped(e.Reason)
	if d.onDrop != nil {
		d.onDrop(e)
	}
	d.dropLog.DebugAt(now, "frame dropped", logging.Fields{
		"reason":    reasonLabel(e.Reason),
		"type":      e.Type.String(),
		"length":    e.Length,
		"discarded": e.Discarded,
	})
}

func (d *Decoder) discard(n int) {
	if n <= 0 {
		return
	}
	d.stats.BytesDiscarded += uint64(n)
	d.metrics.discarded(n)
}
