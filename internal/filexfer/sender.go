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

// Sender splits a file into data packets and writes them through an engine.
type Sender struct {
	e   *engine.Engine
	cfg config
}

// NewSender creates a sender on an engine carrying Protocol.
func NewSender(e *engine.Engine, opts ...Option) *Sender {
	return &Sender{e: e, cfg: newConfig(opts)}
}

// Send reads size bytes from r and sends them as ceil(size/chunk) data
// packets. Every packet carries the packet count and the file size.
func (s *Sender) Send(r io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("send: negative size %d", size)
	}
	err := s.send(r, size)
	metrics.RecordTransfer(metrics.DirectionSent, size, err == nil)
	return err
}

func (s *Sender) send(r io.Reader, size int64) error {
	chunk := s.cfg.chunkSize
	total := packetCount(size, chunk)
	start := time.Now()

	logging.Debug("Sending file",
		zap.Int64("size", size),
		zap.Uint32("packets", total),
		zap.Int("chunk_size", chunk),
	)

	var sent int64
	for i := uint32(1); i <= total; i++ {
		n := min(int64(chunk), size-sent)
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return fmt.Errorf("read chunk %d/%d: %w", i, total, err)
		}

		p := NewPacket(CommandData, data)
		h := p.Header()
		h.TotalPackets = total
		h.TotalFileSize = uint64(size)

		if err := s.e.WritePacket(p); err != nil {
			return fmt.Errorf("send packet %d/%d: %w", i, total, err)
		}
		sent += n
		s.cfg.report(start, int(i), int(total), sent, size)
	}

	logging.Info("File sent",
		zap.Int64("bytes", sent),
		zap.Uint32("packets", total),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
