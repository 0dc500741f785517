package node

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/protocol"
	"github.com/RyanBlaney/sonido-link/transport"
)

type options struct {
	metrics    *protocol.Metrics
	logger     logging.Logger
	sink       func(pixels []uint8)
	decoderCfg protocol.DecoderConfig
}

// Option configures a Sender or Receiver
type Option func(*options)

// WithMetrics records frame counts on m
func WithMetrics(m *protocol.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger replaces the component logger
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSink receives every rendered frame (receiver only)
func WithSink(fn func(pixels []uint8)) Option {
	return func(o *options) {
		o.sink = fn
	}
}

// WithDecoderConfig overrides the frame decoder tunables
func WithDecoderConfig(cfg protocol.DecoderConfig) Option {
	return func(o *options) {
		o.decoderCfg = cfg
	}
}

// decoderConfigFor returns the decoder defaults for a node polling every
// tick. Bytes are only seen once per poll, so a partial frame must survive
// at least one poll that finds the line quiet.
func decoderConfigFor(tick time.Duration) protocol.DecoderConfig {
	cfg := protocol.DefaultDecoderConfig()
	cfg.StaleTimeout = max(cfg.StaleTimeout, 2*tick)
	return cfg
}

func buildOptions(component string, tick time.Duration, opts []Option) options {
	o := options{decoderCfg: decoderConfigFor(tick)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.WithFields(logging.Fields{
			"component": component,
		})
	}
	return o
}

// link is one node's end of the wire: an encoder for outgoing frames and a
// decoder for incoming ones, both over the same port.
type link struct {
	port    io.ReadWriter
	encoder *protocol.Encoder
	decoder *protocol.Decoder
	readBuf []byte
	pending []byte
}

func newLink(port io.ReadWriter, handler protocol.Handler, tick time.Duration, o options) (*link, error) {
	if o.decoderCfg.StaleTimeout <= tick {
		return nil, fmt.Errorf("stale timeout %v must exceed the %v tick", o.decoderCfg.StaleTimeout, tick)
	}
	dec, err := protocol.NewDecoder(o.decoderCfg, handler,
		protocol.WithMetrics(o.metrics),
		protocol.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame decoder: %w", err)
	}
	return &link{
		port:    port,
		encoder: protocol.NewEncoder(o.metrics),
		decoder: dec,
		readBuf: make([]byte, 256),
		pending: make([]byte, 0, 1024),
	}, nil
}

// service reads every byte currently available and feeds the decoder. The
// bytes of one poll arrived somewhere since the previous poll, so a partial
// frame only goes stale across polls that read nothing.
func (l *link) service(now time.Time) (int, error) {
	var err error
	l.pending, err = transport.Drain(l.port, l.pending[:0], l.readBuf)
	delivered := 0
	if len(l.pending) > 0 {
		delivered = l.decoder.Append(l.pending, now)
	} else {
		l.decoder.Expire(now)
	}
	if err != nil {
		return delivered, fmt.Errorf("failed to read from port: %w", err)
	}
	return delivered, nil
}

func (l *link) send(t protocol.Type, m encoding.BinaryMarshaler) error {
	return l.encoder.WriteTo(l.port, t, m)
}

// outbox forwards COMMAND frames through a token bucket without losing the
// newest one. A command that finds no token is held and sent by flush once a
// token frees up; a newer command replaces the held one.
type outbox struct {
	limiter *rate.Limiter
	held    protocol.CommandPayload
	holding bool
}

func newOutbox(limit float64, burst int) *outbox {
	return &outbox{limiter: rate.NewLimiter(rate.Limit(limit), burst)}
}

// offer sends p now when a token is available and reports whether it did
func (o *outbox) offer(now time.Time, l *link, p protocol.CommandPayload) (bool, error) {
	if !o.limiter.AllowN(now, 1) {
		o.held, o.holding = p, true
		return false, nil
	}
	o.holding = false
	return true, l.send(protocol.TypeCommand, p)
}

// flush sends the held command if a token is available
func (o *outbox) flush(now time.Time, l *link) (bool, error) {
	if !o.holding || !o.limiter.AllowN(now, 1) {
		return false, nil
	}
	o.holding = false
	return true, l.send(protocol.TypeCommand, o.held)
}

// drainLines hands every line already queued on lines to fn without
// blocking. It returns nil once lines is closed so callers stop polling it.
func drainLines(lines <-chan string, fn func(string)) <-chan string {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fn(line)
		default:
			return lines
		}
	}
}
