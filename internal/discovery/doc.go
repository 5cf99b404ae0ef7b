// Package discovery finds pktlink receivers on the local network with
// multicast DNS.
//
// A receiver started with `pktlink serve --advertise` registers the
// "_pktlink._tcp" service. Its TXT record names the transport ("tcp" or
// "ws"), the pktlink version and, for WebSocket listeners, the HTTP path.
//
// # Usage Example
//
//	peers, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, p := range peers {
//	    fmt.Println(p.Instance, p.Target())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Peers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
