// Package transport moves raw bytes between nodes. Reads never block for
// long: a Read with nothing pending returns 0 bytes and a nil error, so a
// single-threaded loop can poll it once per tick.
package transport

import "io"

// Port is a polled, bidirectional byte stream
type Port interface {
	io.ReadWriteCloser
}

// Drain reads everything currently available from p into dst, using buf as
// scratch space, and returns the extended dst.
func Drain(p io.Reader, dst, buf []byte) ([]byte, error) {
	for {
		n, err := p.Read(buf)
		dst = append(dst, buf[:n]...)
		if err != nil {
			return dst, err
		}
		if n < len(buf) {
			return dst, nil
		}
	}
}
