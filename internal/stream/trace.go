package stream

import (
	"io"
	"time"

	"github.com/muurk/pktlink/internal/logging"
)

// Trace logs every chunk that crosses a stream at debug level.
type Trace struct {
	rw io.ReadWriter
}

// NewTrace wraps rw.
func NewTrace(rw io.ReadWriter) *Trace {
	return &Trace{rw: rw}
}

func (t *Trace) Read(p []byte) (int, error) {
	n, err := t.rw.Read(p)
	if n > 0 {
		logging.LogRawBytes("Stream read", p[:n])
	}
	return n, err
}

func (t *Trace) Write(p []byte) (int, error) {
	n, err := t.rw.Write(p)
	if n > 0 {
		logging.LogRawBytes("Stream write", p[:n])
	}
	return n, err
}

func (t *Trace) SetReadDeadline(deadline time.Time) error {
	return setReadDeadline(t.rw, deadline)
}

func (t *Trace) Close() error {
	return closeStream(t.rw)
}
