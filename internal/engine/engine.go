package engine

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/muurk/pktlink/internal/escape"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/metrics"
	"github.com/muurk/pktlink/internal/packet"
	"go.uber.org/zap"
)

// Engine exchanges packets of one protocol over one stream.
type Engine struct {
	stream  io.ReadWriter
	proto   Protocol
	cfg     Config
	esc     byte
	escaped packet.Segment

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	transmitRetries atomic.Uint64
	receiveRetries  atomic.Uint64
}

// New creates an engine for the given stream and protocol.
//
// Example:
//
//	conn, err := net.Dial("tcp", "192.168.1.10:7070")
//	if err != nil {
//	    return err
//	}
//	e := engine.New(conn, filexfer.Protocol{}, engine.WithReadTimeout(5*time.Second))
func New(stream io.ReadWriter, proto Protocol, opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		stream:  stream,
		proto:   proto,
		cfg:     cfg,
		esc:     proto.EscapeByte(),
		escaped: proto.EscapedSegments(),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Protocol returns the protocol carried by the engine.
func (e *Engine) Protocol() Protocol { return e.proto }

// Link returns the signal channel used by protocol hooks. Session-level
// code uses it for handshakes outside a packet exchange.
func (e *Engine) Link() Link { return link{e: e} }

// PacketsSent returns the number of packets the peer accepted.
func (e *Engine) PacketsSent() uint64 { return e.packetsSent.Load() }

// PacketsReceived returns the number of packets that passed validation.
func (e *Engine) PacketsReceived() uint64 { return e.packetsReceived.Load() }

// TransmitRetryCount returns the number of resends.
func (e *Engine) TransmitRetryCount() uint64 { return e.transmitRetries.Load() }

// ReceiveRetryCount returns the number of fresh reads after invalid packets.
func (e *Engine) ReceiveRetryCount() uint64 { return e.receiveRetries.Load() }

// ReadPacket reads the next packet. A packet that fails validation is
// discarded and read again until the receive retry budget is spent.
func (e *Engine) ReadPacket() (packet.Packet, error) {
	name := e.proto.Name()

	for attempt := 1; ; attempt++ {
		p, valid, err := e.receive()
		if err != nil {
			return nil, e.fail(OpRead, attempt, p, err)
		}

		if valid {
			e.packetsReceived.Add(1)
			metrics.RecordPacket(name, metrics.DirectionReceived, p.Segments().Len())
			logging.LogPacket(name, metrics.DirectionReceived, packet.Describe(p), attempt)
			return p, nil
		}

		if attempt > e.cfg.ReceiveRetries {
			le := &LinkError{Type: ErrTypeTransport, Op: OpRead, Attempts: attempt, Packet: p, Err: ErrValidation}
			return nil, e.record(le)
		}

		e.receiveRetries.Add(1)
		metrics.RecordRetry(name, metrics.DirectionReceived)
		logging.Warn("Received packet failed validation, retrying",
			zap.String("protocol", name),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.cfg.ReceiveRetries),
		)
		time.Sleep(e.cfg.ReceiveRetryDelay)
	}
}

func (e *Engine) receive() (packet.Packet, bool, error) {
	p := e.proto.NewPacket()
	f := p.Segments()
	layout := f.Layout()

	for _, seg := range packet.WireOrder {
		n := layout.Size(seg)
		if seg == packet.Payload && layout.Declares(packet.Payload) {
			var err error
			if n, err = e.payloadSize(p); err != nil {
				return p, false, err
			}
		}

		raw, err := e.readSegment(n, e.escaped.Has(seg))
		if err != nil {
			return p, false, fmt.Errorf("%s: %w", seg, err)
		}
		f.SetRaw(seg, raw)
		logging.LogRawBytes("Read "+seg.String(), raw)

		if seg == packet.Preamble {
			if err := packet.Reconstruct(p, packet.Preamble); err != nil {
				return p, false, err
			}
		}
	}

	if err := packet.Reconstruct(p, packet.All); err != nil {
		return p, false, err
	}

	valid := p.Validate()
	if err := e.proto.Acknowledge(e.Link(), p, valid); err != nil {
		return p, false, fmt.Errorf("acknowledge: %w", err)
	}
	return p, valid, nil
}

func (e *Engine) payloadSize(p packet.Packet) (int, error) {
	n := p.PayloadSize()
	elem := p.Segments().Layout().ElementSize()
	if n < 0 || n > e.cfg.MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, n, e.cfg.MaxPayloadSize)
	}
	if n%elem != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrPayloadTooLarge, n, elem)
	}
	return n, nil
}

// WritePacket writes p and waits for the protocol's acknowledgement. A
// rejected packet is prepared and sent again until the transmit retry
// budget is spent.
func (e *Engine) WritePacket(p packet.Packet) error {
	name := e.proto.Name()

	for attempt := 1; ; attempt++ {
		accepted, err := e.transmit(p)
		if err != nil {
			return e.fail(OpWrite, attempt, p, err)
		}

		if accepted {
			e.packetsSent.Add(1)
			metrics.RecordPacket(name, metrics.DirectionSent, p.Segments().Len())
			logging.LogPacket(name, metrics.DirectionSent, packet.Describe(p), attempt)
			return nil
		}

		if attempt > e.cfg.TransmitRetries {
			le := &LinkError{Type: ErrTypeTransport, Op: OpWrite, Attempts: attempt, Packet: p, Err: ErrRejected}
			return e.record(le)
		}

		e.transmitRetries.Add(1)
		metrics.RecordRetry(name, metrics.DirectionSent)
		logging.Warn("Packet rejected by peer, resending",
			zap.String("protocol", name),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.cfg.TransmitRetries),
		)
		time.Sleep(e.cfg.TransmitRetryDelay)
	}
}

func (e *Engine) transmit(p packet.Packet) (bool, error) {
	if err := p.Prepare(); err != nil {
		return false, fmt.Errorf("%w: prepare: %w", packet.ErrInvalidState, err)
	}
	if err := packet.Deconstruct(p, packet.All); err != nil {
		return false, err
	}

	f := p.Segments()
	for _, seg := range packet.WireOrder {
		data := f.Raw(seg)
		if len(data) == 0 {
			continue
		}
		if e.escaped.Has(seg) {
			data = escape.Encode(data, e.esc)
		}
		logging.LogRawBytes("Write "+seg.String(), f.Raw(seg))
		if _, err := e.stream.Write(data); err != nil {
			return false, fmt.Errorf("%s: %w", seg, err)
		}
	}

	accepted, err := e.proto.AwaitAck(e.Link(), p)
	if err != nil {
		return false, fmt.Errorf("await ack: %w", err)
	}
	return accepted, nil
}

// fail records err as a LinkError carrying p, the packet in flight when the
// operation stopped. On the read path it may be only partly decoded.
func (e *Engine) fail(op string, attempt int, p packet.Packet, err error) error {
	le := newLinkError(op, attempt, err)
	if le.Packet == nil {
		le.Packet = p
	}
	return e.record(le)
}

func (e *Engine) record(le *LinkError) error {
	metrics.RecordError(e.proto.Name(), le.Op, le.Type.Label())
	if le.Type == ErrTypeIO {
		logging.Debug("Packet operation ended by stream",
			zap.String("protocol", e.proto.Name()),
			zap.String("op", le.Op),
			zap.Error(le.Err),
		)
	} else {
		logging.Warn("Packet operation failed",
			zap.String("protocol", e.proto.Name()),
			zap.String("op", le.Op),
			zap.String("type", le.Type.String()),
			zap.Int("attempts", le.Attempts),
			zap.Error(le.Err),
		)
	}
	return le
}
