package stream

import (
	"io"

	"github.com/satindergrewal/sruthi/internal/audio"
)

// Reader adapts a listener to an io.Reader of little-endian s16 PCM. Read
// blocks until a frame arrives and returns io.EOF once the listener is done.
type Reader struct {
	l   *Listener
	buf []byte
}

// NewReader wraps l.
func NewReader(l *Listener) *Reader {
	return &Reader{l: l}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		select {
		case <-r.l.done:
			return 0, io.EOF
		case frame := <-r.l.C:
			r.buf = audio.SamplesToBytes(frame)
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
