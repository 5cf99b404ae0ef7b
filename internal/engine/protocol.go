package engine

import (
	"time"

	"github.com/muurk/pktlink/internal/escape"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/packet"
	"go.uber.org/zap"
)

// Protocol describes a concrete protocol carried by the engine: its packet
// variant, its escaping and its acknowledgement handshake.
type Protocol interface {
	// Name identifies the protocol in logs and metrics.
	Name() string

	// NewPacket returns an empty packet of the protocol's variant.
	NewPacket() packet.Packet

	// EscapeByte returns the escape byte. Zero disables escaping.
	EscapeByte() byte

	// EscapedSegments selects the segments that are escaped on the wire.
	EscapedSegments() packet.Segment

	// AwaitAck runs after a packet has been written. It reports whether the
	// peer accepted the packet.
	AwaitAck(link Link, p packet.Packet) (bool, error)

	// Acknowledge runs after a packet has been read and validated.
	Acknowledge(link Link, p packet.Packet, valid bool) error
}

// BaseProtocol provides handshake hooks for protocols without
// acknowledgements. Embed it and implement the remaining methods.
type BaseProtocol struct{}

// AwaitAck accepts every write.
func (BaseProtocol) AwaitAck(Link, packet.Packet) (bool, error) { return true, nil }

// Acknowledge sends nothing.
func (BaseProtocol) Acknowledge(Link, packet.Packet, bool) error { return nil }

// Link is the engine's stream as seen by protocol hooks. Signal reads are
// bounded by the engine's read timeout.
type Link interface {
	ReadSignal() (byte, error)
	WriteSignal(ctrl byte) error
}

type link struct {
	e *Engine
}

func (l link) ReadSignal() (byte, error) {
	e := l.e
	deadline := e.deadline()
	if err := e.armDeadline(deadline); err != nil {
		return 0, err
	}
	defer e.disarmDeadline()

	ctrl, err := escape.ReadSignal(&deadlineReader{e: e, deadline: deadline}, e.esc)
	if err != nil {
		return 0, err
	}
	logging.Debug("Signal received",
		zap.String("protocol", e.proto.Name()),
		zap.Uint8("ctrl", ctrl),
	)
	return ctrl, nil
}

func (l link) WriteSignal(ctrl byte) error {
	e := l.e
	logging.Debug("Signal sent",
		zap.String("protocol", e.proto.Name()),
		zap.Uint8("ctrl", ctrl),
	)
	return escape.WriteSignal(e.stream, e.esc, ctrl)
}

// deadlineReader fails reads that start after the deadline and paces idle
// reads. It covers streams that cannot enforce a deadline themselves.
type deadlineReader struct {
	e        *Engine
	deadline time.Time
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if expired(r.deadline) {
		return 0, ErrTimeout
	}
	n, err := r.e.stream.Read(p)
	if n == 0 && err == nil {
		idle(r.deadline)
	}
	return n, err
}
