package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/muurk/pktlink/internal/discovery"
	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
	"github.com/muurk/pktlink/internal/logging"
	"github.com/muurk/pktlink/internal/metrics"
	"github.com/muurk/pktlink/internal/stream"
	"github.com/muurk/pktlink/internal/version"
	"go.uber.org/zap"
)

// Transport labels used in logs, metrics and mDNS records.
const (
	TransportTCP       = discovery.TransportTCP
	TransportWebSocket = discovery.TransportWebSocket
)

// Config holds the server configuration
type Config struct {
	TCPAddr    string      // TCP listen address, empty disables
	WSAddr     string      // WebSocket and metrics listen address, empty disables
	CertPath   string      // TLS certificate for the TCP listener (optional)
	KeyPath    string      // TLS private key for the TCP listener (optional)
	TLS        *tls.Config // Overrides CertPath/KeyPath when set
	Root       string      // Directory uploads are stored in and downloads served from
	CaptureDir string      // Directory to write wire captures (empty = disabled)
	Advertise  bool        // Register listeners via mDNS
	Instance   string      // mDNS instance name, defaults to the hostname

	Engine   []engine.Option
	Transfer []filexfer.Option
}

// Server accepts pktlink streams and answers file transfer requests on them.
type Server struct {
	config    *Config
	tlsConfig *tls.Config
	store     filexfer.Store

	tcpListener net.Listener
	wsListener  net.Listener
	httpServer  *http.Server
	ads         []*discovery.Advertisement

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]io.Closer
	closed      bool
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config.TCPAddr == "" && config.WSAddr == "" {
		return nil, errors.New("no listen address configured")
	}

	tlsConfig := config.TLS
	if tlsConfig == nil && (config.CertPath != "" || config.KeyPath != "") {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	root := config.Root
	if root == "" {
		root = "."
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", root)
	}

	metrics.RegisterMetrics()

	return &Server{
		config:      config,
		tlsConfig:   tlsConfig,
		store:       filexfer.DirStore{Root: root},
		activeConns: make(map[string]io.Closer),
	}, nil
}

// Start serves until SIGINT or SIGTERM, then shuts down.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.ListenAndServe(ctx)
}

// Listen opens the configured listeners. ListenAndServe calls it when it
// has not been called yet.
func (s *Server) Listen() error {
	if s.config.TCPAddr != "" && s.tcpListener == nil {
		l, err := net.Listen("tcp", s.config.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to create TCP listener: %w", err)
		}
		if s.tlsConfig != nil {
			logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
			l = tls.NewListener(l, s.tlsConfig)
		}
		s.tcpListener = l
	}

	if s.config.WSAddr != "" && s.wsListener == nil {
		l, err := net.Listen("tcp", s.config.WSAddr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("failed to create WebSocket listener: %w", err)
		}
		s.wsListener = l
		s.httpServer = &http.Server{
			Handler:           s.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return nil
}

// TCPAddr returns the bound TCP address, or nil before Listen.
func (s *Server) TCPAddr() net.Addr {
	if s.tcpListener == nil {
		return nil
	}
	return s.tcpListener.Addr()
}

// WSAddr returns the bound WebSocket address, or nil before Listen.
func (s *Server) WSAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// ListenAndServe serves until ctx is done or a listener fails, then shuts
// down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 2)
	if s.tcpListener != nil {
		logging.Info("Listening for TCP streams",
			zap.String("addr", s.tcpListener.Addr().String()),
			zap.Bool("tls", s.tlsConfig != nil),
		)
		go func() { errChan <- s.acceptConnections(s.tcpListener) }()
	}
	if s.wsListener != nil {
		logging.Info("Listening for WebSocket streams",
			zap.String("addr", s.wsListener.Addr().String()),
			zap.String("path", stream.WebSocketPath),
		)
		go func() {
			err := s.httpServer.Serve(s.wsListener)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errChan <- err
		}()
	}

	if s.config.Advertise {
		s.advertise()
	}

	var err error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
	case err = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, s.Shutdown(shutdownCtx))
}

// advertise registers each listener via mDNS. Failures are logged only.
func (s *Server) advertise() {
	instance := s.config.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	for transport, addr := range map[string]net.Addr{
		TransportTCP:       s.TCPAddr(),
		TransportWebSocket: s.WSAddr(),
	} {
		if addr == nil {
			continue
		}
		_, portStr, _ := net.SplitHostPort(addr.String())
		port, _ := strconv.Atoi(portStr)
		ad, err := discovery.Advertise(instance, port, transport, version.Version)
		if err != nil {
			logging.Warn("mDNS advertisement failed",
				zap.String("transport", transport),
				zap.Error(err),
			)
			continue
		}
		s.ads = append(s.ads, ad)
	}
}

// acceptConnections accepts and handles incoming TCP connections
func (s *Server) acceptConnections(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logging.Warn("Temporary accept failure", zap.Error(err))
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		go s.handleConn(conn)
	}
}

// handleConn runs a TCP connection, completing the TLS handshake first
// when the listener is TLS.
func (s *Server) handleConn(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		_ = tlsConn.SetDeadline(time.Now().Add(10 * time.Second))
		if err := tlsConn.Handshake(); err != nil {
			logging.Error("TLS handshake failed",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			_ = conn.Close()
			return
		}
		_ = tlsConn.SetDeadline(time.Time{})

		state := tlsConn.ConnectionState()
		logging.LogTLSHandshake(remoteAddr, state.Version, state.CipherSuite, state.ServerName)
	}

	s.serveStream(conn, remoteAddr, TransportTCP)
}

// serveStream answers transfer requests on st until the peer goes away or
// the stream can no longer be trusted.
func (s *Server) serveStream(st stream.Stream, remoteAddr, transport string) {
	if !s.track(remoteAddr, st) {
		_ = st.Close()
		return
	}
	defer func() {
		_ = st.Close()
		s.untrack(remoteAddr)
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")
	metrics.RecordConnection(transport)

	var rw io.ReadWriter = st
	if s.config.CaptureDir != "" {
		f, err := stream.CaptureFile(s.config.CaptureDir)
		if err != nil {
			logging.Warn("Wire capture disabled for connection",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
		} else {
			defer f.Close()
			rw = stream.NewCapture(st, f, remoteAddr)
		}
	}

	e := engine.New(rw, filexfer.Protocol{}, s.config.Engine...)
	for {
		req, err := filexfer.Serve(e, s.store, s.config.Transfer...)
		if err == nil {
			logging.Info("Transfer complete",
				zap.String("remote_addr", remoteAddr),
				zap.Stringer("command", req.Command),
				zap.String("name", req.Name),
				zap.Int64("bytes", req.Bytes),
			)
			continue
		}
		if !recoverable(err) {
			if !engine.IsClosed(err) {
				logging.Warn("Dropping connection",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		logging.Warn("Transfer failed",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}

// recoverable reports whether the stream is still in sync after err.
// Timeouts end the connection: an idle peer is dropped after one
// ReadTimeout, and a WebSocket cannot be read again after a deadline fires.
func recoverable(err error) bool {
	return !engine.IsClosed(err) && !engine.IsTimeout(err) && !engine.IsFraming(err)
}

// track registers a connection for Shutdown. It fails once Shutdown has
// started.
func (s *Server) track(remoteAddr string, c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.activeConns[remoteAddr] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(remoteAddr string) {
	s.mu.Lock()
	delete(s.activeConns, remoteAddr)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) closeListeners() {
	for _, l := range []net.Listener{s.tcpListener, s.wsListener} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	for _, ad := range s.ads {
		ad.Shutdown()
	}
	s.ads = nil

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.closeListeners()

	// Close all active connections
	s.mu.Lock()
	s.closed = true
	for addr, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
