package filexfer

import (
	"fmt"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/escape"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/packet"
	"go.uber.org/zap"
)

// Wire constants.
const (
	EscapeByte = 0x10 // DLE
	ACK        = 0x06
	NAK        = 0x15
)

// Protocol is the engine.Protocol for file transfer. Only the payload is
// escaped; every packet is answered with ACK or NAK.
type Protocol struct{}

var _ engine.Protocol = Protocol{}

func (Protocol) Name() string { return "filexfer" }

func (Protocol) NewPacket() packet.Packet { return newEmptyPacket() }

func (Protocol) EscapeByte() byte { return EscapeByte }

func (Protocol) EscapedSegments() packet.Segment { return packet.Payload }

// AwaitAck reads the receiver's answer. Anything but ACK or NAK is a
// framing error.
func (Protocol) AwaitAck(link engine.Link, _ packet.Packet) (bool, error) {
	ctrl, err := link.ReadSignal()
	if err != nil {
		return false, err
	}
	switch ctrl {
	case ACK:
		return true, nil
	case NAK:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unexpected control byte 0x%02x", escape.ErrBadSignal, ctrl)
	}
}

// Acknowledge answers a received packet with ACK or NAK.
func (Protocol) Acknowledge(link engine.Link, p packet.Packet, valid bool) error {
	if valid {
		return link.WriteSignal(ACK)
	}
	if fp, ok := p.(*Packet); ok {
		if err := fp.Verify(); err != nil {
			logging.Warn("Rejecting packet", zap.Error(err))
		}
	}
	return link.WriteSignal(NAK)
}
