package transport

import (
	"errors"
	"math/rand"
	"sync"
)

// ErrClosed is returned by operations on a closed link end
var ErrClosed = errors.New("link closed")

// Impairment models an unreliable wire. Each byte is independently dropped,
// corrupted with a random bit flip, or followed by an injected noise byte.
type Impairment struct {
	DropRate    float64 `mapstructure:"drop_rate"`
	CorruptRate float64 `mapstructure:"corrupt_rate"`
	InsertRate  float64 `mapstructure:"insert_rate"`
}

// wire is one direction of a link
type wire struct {
	mu     sync.Mutex
	buf    []byte
	impair Impairment
	rng    *rand.Rand
	closed bool
}

func (w *wire) write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	for _, b := range p {
		if w.rng.Float64() < w.impair.DropRate {
			continue
		}
		if w.rng.Float64() < w.impair.CorruptRate {
			b ^= 1 << w.rng.Intn(8)
		}
		w.buf = append(w.buf, b)
		if w.rng.Float64() < w.impair.InsertRate {
			w.buf = append(w.buf, byte(w.rng.Intn(256)))
		}
	}
	return len(p), nil
}

func (w *wire) read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 && w.closed {
		return 0, ErrClosed
	}
	n := copy(p, w.buf)
	w.buf = w.buf[:copy(w.buf, w.buf[n:])]
	return n, nil
}

func (w *wire) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

var _ Port = (*Endpoint)(nil)

// Endpoint is one side of an in-memory link
type Endpoint struct {
	in  *wire
	out *wire
}

// NewLink returns two connected endpoints. Bytes written on one are
// readable on the other after passing through the impairment. seed makes
// the impairment reproducible.
func NewLink(impair Impairment, seed int64) (*Endpoint, *Endpoint) {
	ab := &wire{impair: impair, rng: rand.New(rand.NewSource(seed))}
	ba := &wire{impair: impair, rng: rand.New(rand.NewSource(seed + 1))}
	return &Endpoint{in: ba, out: ab}, &Endpoint{in: ab, out: ba}
}

// Read returns pending bytes without blocking
func (e *Endpoint) Read(p []byte) (int, error) {
	return e.in.read(p)
}

func (e *Endpoint) Write(p []byte) (int, error) {
	return e.out.write(p)
}

// Close closes the sending direction; the peer reads ErrClosed once drained
func (e *Endpoint) Close() error {
	e.out.close()
	return nil
}

// Pending returns the number of bytes waiting to be read
func (e *Endpoint) Pending() int {
	e.in.mu.Lock()
	defer e.in.mu.Unlock()
	return len(e.in.buf)
}
