package filexfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/logging"
	"go.uber.org/zap"
)

// Request describes one session answered by Serve.
type Request struct {
	Command Command
	Name    string
	Bytes   int64
}

// Upload announces name to the peer and sends size bytes from r once the
// peer is ready.
func Upload(e *engine.Engine, name string, r io.Reader, size int64, opts ...Option) error {
	cfg := newConfig(opts)

	put := NewPacket(CommandPut, []byte(name))
	put.Header().TotalFileSize = uint64(size)
	put.Header().TotalPackets = packetCount(size, cfg.chunkSize)
	if err := e.WritePacket(put); err != nil {
		return fmt.Errorf("announce upload: %w", err)
	}

	if err := awaitReady(e); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return NewSender(e, opts...).Send(r, size)
}

// Download requests name from the peer and writes it to dst.
func Download(e *engine.Engine, name string, dst io.WriterAt, opts ...Option) (int64, error) {
	if err := e.WritePacket(NewPacket(CommandGet, []byte(name))); err != nil {
		return 0, fmt.Errorf("request download: %w", err)
	}
	n, err := NewReceiver(e, opts...).Receive(dst)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", name, err)
	}
	return n, nil
}

func awaitReady(e *engine.Engine) error {
	pkt, err := e.ReadPacket()
	if err != nil {
		return err
	}
	p, err := asPacket(pkt)
	if err != nil {
		return err
	}
	switch cmd := p.Header().Command; cmd {
	case CommandPut:
		return nil
	case CommandError:
		return &RemoteError{Message: string(p.Payload())}
	default:
		return unexpected(cmd, CommandPut.String())
	}
}

// Serve answers one Put or Get request read from e against store. Failures
// the peer should know about are reported to it with a CommandError packet
// before Serve returns them.
func Serve(e *engine.Engine, store Store, opts ...Option) (*Request, error) {
	pkt, err := e.ReadPacket()
	if err != nil {
		return nil, err
	}
	p, err := asPacket(pkt)
	if err != nil {
		return nil, err
	}
	req := &Request{Command: p.Header().Command, Name: string(p.Payload())}

	logging.Info("Transfer requested",
		zap.Stringer("command", req.Command),
		zap.String("name", req.Name),
	)

	switch req.Command {
	case CommandPut:
		req.Bytes, err = servePut(e, store, req.Name, opts)
	case CommandGet:
		req.Bytes, err = serveGet(e, store, req.Name, opts)
	default:
		err = reject(e, unexpected(req.Command, "put or get"))
	}
	return req, err
}

func servePut(e *engine.Engine, store Store, name string, opts []Option) (int64, error) {
	f, err := store.Create(name)
	if err != nil {
		return 0, reject(e, err)
	}
	if err := e.WritePacket(NewPacket(CommandPut, nil)); err != nil {
		f.Abort()
		return 0, fmt.Errorf("confirm upload: %w", err)
	}

	n, err := NewReceiver(e, opts...).Receive(f)
	if err != nil {
		f.Abort()
		return n, err
	}
	return n, f.Commit()
}

func serveGet(e *engine.Engine, store Store, name string, opts []Option) (int64, error) {
	rc, size, err := store.Open(name)
	if err != nil {
		return 0, reject(e, err)
	}
	defer rc.Close()

	if err := NewSender(e, opts...).Send(rc, size); err != nil {
		return 0, err
	}
	return size, nil
}

// reject tells the peer why its request failed and returns cause.
func reject(e *engine.Engine, cause error) error {
	logging.Warn("Rejecting transfer", zap.Error(cause))
	if err := e.WritePacket(NewPacket(CommandError, []byte(cause.Error()))); err != nil {
		return errors.Join(cause, fmt.Errorf("report error to peer: %w", err))
	}
	return cause
}
