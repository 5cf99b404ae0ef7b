package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/pktlink/internal/discovery"
	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/stream"
	"github.com/muurk/pktlink/internal/ui"
)

// Connection flags shared by send and get
var (
	target      string
	discover    bool
	dialTimeout time.Duration
	insecure    bool
	trace       bool
	captureDir  string
)

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&target, "target", "t", "", "Receiver URL (tcp://, tls://, ws://, wss://) or configured link name")
	cmd.Flags().BoolVar(&discover, "discover", false, "Use the first receiver found via mDNS")
	cmd.Flags().DurationVar(&dialTimeout, "dial-timeout", 10*time.Second, "Connection setup timeout")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	cmd.Flags().BoolVar(&trace, "trace", false, "Log every stream chunk at debug level")
	cmd.Flags().StringVar(&captureDir, "capture", "", "Directory to write a JSONL wire capture to")
}

// session is an open link to a receiver.
type session struct {
	Target string
	Engine *engine.Engine

	linkName string
	closers  []io.Closer
}

// resolveTarget turns the target flags into a dial target. It returns the
// link name when the target names a configured link.
func resolveTarget(ctx context.Context) (string, string, error) {
	switch {
	case target != "":
		if registry.GetLink(target) != nil {
			return registry.ResolveTarget(target), target, nil
		}
		return target, "", nil
	case discover:
		scanner := discovery.NewScanner()
		scanner.Timeout = time.Duration(registry.Preferences.DiscoverTimeout) * time.Second
		peers, err := scanner.Scan(ctx)
		if err != nil {
			return "", "", fmt.Errorf("discovery failed: %w", err)
		}
		if len(peers) == 0 {
			return "", "", errors.New("no receivers found via mDNS")
		}
		peer, err := ui.PickPeer(peers, os.Stdin, os.Stdout)
		if err != nil {
			return "", "", err
		}
		logging.Info("Using discovered receiver", zap.String("peer", peer.String()))
		return peer.Target(), "", nil
	default:
		return "", "", errors.New("no receiver given: use --target or --discover")
	}
}

// openSession dials the receiver and builds an engine over the stream.
func openSession(ctx context.Context) (*session, error) {
	dialTarget, linkName, err := resolveTarget(ctx)
	if err != nil {
		return nil, err
	}

	opts := stream.DialOptions{Timeout: dialTimeout}
	if insecure {
		opts.TLS = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit --insecure
	}
	st, err := stream.Dial(ctx, dialTarget, opts)
	if err != nil {
		return nil, err
	}

	s := &session{Target: dialTarget, linkName: linkName, closers: []io.Closer{st}}

	var rw io.ReadWriter = st
	if trace {
		rw = stream.NewTrace(rw)
	}
	if captureDir != "" {
		f, err := stream.CaptureFile(captureDir)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, f)
		rw = stream.NewCapture(rw, f, dialTarget)
		logging.Info("Capturing wire traffic", zap.String("file", f.Name()))
	}

	s.Engine = engine.New(rw, filexfer.Protocol{}, registry.Engine.Options()...)
	return s, nil
}

// transferOptions returns the configured transfer options plus extra.
func transferOptions(extra ...filexfer.Option) []filexfer.Option {
	return append(registry.Transfer.Options(), extra...)
}

// done records a successful transfer against the link used, if any.
func (s *session) done() {
	if s.linkName == "" {
		return
	}
	registry.TouchLink(s.linkName)
	if err := saveRegistry(); err != nil {
		logging.Warn("Failed to record link use", zap.Error(err))
	}
}

// Close closes the stream and any capture file.
func (s *session) Close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
}

// fileSize returns the size of a regular file.
func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", f.Name())
	}
	return info.Size(), nil
}
