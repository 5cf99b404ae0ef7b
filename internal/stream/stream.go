package stream

import (
	"errors"
	"io"
	"time"
)

const (
	// DefaultTCPPort is used for tcp and tls targets without a port
	DefaultTCPPort = 7070

	// DefaultWebSocketPort is used for ws and wss targets without a port
	DefaultWebSocketPort = 7071

	// WebSocketPath is the HTTP path of the WebSocket endpoint
	WebSocketPath = "/link"
)

// Stream is a duplex byte stream with read deadlines.
type Stream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// setReadDeadline forwards to rw when it supports deadlines.
func setReadDeadline(rw any, t time.Time) error {
	if d, ok := rw.(deadliner); ok {
		return d.SetReadDeadline(t)
	}
	return errors.ErrUnsupported
}

func closeStream(rw any) error {
	if c, ok := rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
