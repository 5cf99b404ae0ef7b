package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Peer is a pktlink receiver found on the network
type Peer struct {
	// Instance is the advertised service instance name (e.g., "workshop-pi")
	Instance string

	// Hostname is the mDNS hostname (e.g., "workshop-pi.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the peer has none
	IP string

	// Port is the advertised listener port
	Port int

	// Transport is "tcp" or "ws", taken from the TXT record
	Transport string

	// Version is the peer's pktlink version, taken from the TXT record
	Version string

	// Metadata contains all mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the peer was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the peer
func (p *Peer) String() string {
	return fmt.Sprintf("pktlink peer %s (%s) at %s", p.Instance, p.Transport, net.JoinHostPort(p.IP, strconv.Itoa(p.Port)))
}

// Target returns a dial target for the stream package.
func (p *Peer) Target() string {
	hostPort := net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
	if p.Transport == TransportWebSocket {
		path := p.GetMetadata("path")
		if path == "" {
			path = "/link"
		}
		return "ws://" + hostPort + path
	}
	return "tcp://" + hostPort
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (p *Peer) GetMetadata(key string) string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[key]
}
