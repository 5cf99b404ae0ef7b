package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/pktlink/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type of pktlink receivers
	ServiceType = "_pktlink._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for peer discovery
	DefaultScanTimeout = 5 * time.Second

	// Transport values advertised in the TXT record
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Scanner handles mDNS peer discovery
type Scanner struct {
	// Timeout is the maximum time to wait for peer discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers all pktlink peers on the local network until the timeout
// or ctx ends.
func (s *Scanner) Scan(ctx context.Context) ([]*Peer, error) {
	var (
		mu    sync.Mutex
		peers []*Peer
	)
	err := s.browse(ctx, func(p *Peer) bool {
		mu.Lock()
		peers = append(peers, p)
		mu.Unlock()
		return false
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return peers, nil
}

// WaitForPeer waits for a peer with the given instance name.
func (s *Scanner) WaitForPeer(ctx context.Context, instance string) (*Peer, error) {
	var found *Peer
	err := s.browse(ctx, func(p *Peer) bool {
		if p.Instance == instance {
			found = p
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("peer %s not found within timeout", instance)
	}
	return found, nil
}

// browse feeds parsed peers to fn until fn returns true, the timeout
// expires or ctx ends. fn runs on a single goroutine.
func (s *Scanner) browse(ctx context.Context, fn func(*Peer) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			peer := s.parseServiceEntry(entry)
			if peer == nil {
				continue
			}
			logging.Debug("Peer discovered", zap.String("peer", peer.String()))
			if fn(peer) {
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// the resolver closes entries once ctx is done
	<-done
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Peer
// Returns nil if the entry has no usable address
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Peer {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	// Parse TXT records into metadata
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	transport := metadata["transport"]
	if transport != TransportWebSocket {
		transport = TransportTCP
	}

	return &Peer{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Transport:    transport,
		Version:      metadata["version"],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers a pktlink listener under instance until Shutdown.
func Advertise(instance string, port int, transport, version string) (*Advertisement, error) {
	txt := []string{"transport=" + transport, "version=" + version}
	if transport == TransportWebSocket {
		txt = append(txt, "path=/link")
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising via mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.String("transport", transport),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// QuickScan performs a fast scan with a 3-second timeout
func QuickScan(ctx context.Context) ([]*Peer, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.Scan(ctx)
}
