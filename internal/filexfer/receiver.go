package filexfer

import (
	"fmt"
	"io"
	"time"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/metrics"
	"go.uber.org/zap"
)

// Receiver reassembles a file from data packets read through an engine.
type Receiver struct {
	e   *engine.Engine
	cfg config
}

// NewReceiver creates a receiver on an engine carrying Protocol.
func NewReceiver(e *engine.Engine, opts ...Option) *Receiver {
	return &Receiver{e: e, cfg: newConfig(opts)}
}

type truncater interface {
	Truncate(size int64) error
}

// Receive writes payloads to dst at sequential offsets until the number of
// packets announced by the first packet has arrived. It returns the number
// of bytes written. A CommandError packet ends the transfer with a
// *RemoteError.
func (r *Receiver) Receive(dst io.WriterAt) (int64, error) {
	n, err := r.receive(dst)
	metrics.RecordTransfer(metrics.DirectionReceived, n, err == nil)
	return n, err
}

func (r *Receiver) receive(dst io.WriterAt) (int64, error) {
	var (
		total   uint32
		size    int64
		offset  int64
		start   = time.Now()
		current uint32
	)

	for {
		p, err := r.readData()
		if err != nil {
			return offset, fmt.Errorf("receive packet %d: %w", current+1, err)
		}
		h := p.Header()

		if current == 0 {
			total, size = h.TotalPackets, int64(h.TotalFileSize)
			if total == 0 {
				return 0, fmt.Errorf("%w: first packet announces no packets", ErrSizeMismatch)
			}
			if t, ok := dst.(truncater); ok {
				if err := t.Truncate(size); err != nil {
					return 0, fmt.Errorf("preallocate %d bytes: %w", size, err)
				}
			}
			logging.Debug("Receiving file",
				zap.Int64("size", size),
				zap.Uint32("packets", total),
			)
		}

		payload := p.Payload()
		if offset+int64(len(payload)) > size {
			return offset, fmt.Errorf("%w: data exceeds announced %d bytes", ErrSizeMismatch, size)
		}
		if _, err := dst.WriteAt(payload, offset); err != nil {
			return offset, fmt.Errorf("write at %d: %w", offset, err)
		}
		offset += int64(len(payload))
		current++
		r.cfg.report(start, int(current), int(total), offset, size)

		if current == total {
			break
		}
	}

	if offset != size {
		return offset, fmt.Errorf("%w: received %d bytes, announced %d", ErrSizeMismatch, offset, size)
	}

	logging.Info("File received",
		zap.Int64("bytes", offset),
		zap.Uint32("packets", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return offset, nil
}

// readData reads the next packet and requires it to carry file data.
func (r *Receiver) readData() (*Packet, error) {
	pkt, err := r.e.ReadPacket()
	if err != nil {
		return nil, err
	}
	p, err := asPacket(pkt)
	if err != nil {
		return nil, err
	}
	switch cmd := p.Header().Command; cmd {
	case CommandData:
		return p, nil
	case CommandError:
		return nil, &RemoteError{Message: string(p.Payload())}
	default:
		return nil, unexpected(cmd, CommandData.String())
	}
}
