// Package server implements the receiving side of pktlink.
//
// A Server listens for byte streams on TCP (optionally wrapped in TLS) and on
// WebSocket, runs one engine per connection with the file-transfer protocol,
// and answers Put and Get requests against a directory.
//
// # Listeners
//
// The TCP listener carries the packet stream directly. The WebSocket listener
// is an HTTP server with three routes:
//   - /link: upgrades to a WebSocket; binary messages carry the stream
//   - /metrics: Prometheus metrics
//   - /healthz: liveness probe reporting the active connection count
//
// # Connection Lifecycle
//
// Each connection is served until the peer closes it, a read times out, or a
// framing error leaves the stream out of sync. Failed transfers that leave
// the stream usable are logged and the connection keeps serving requests.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    TCPAddr: ":7070",
//	    WSAddr:  ":7071",
//	    Root:    "/srv/pktlink",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT or SIGTERM
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Shutdown withdraws mDNS advertisements, closes the listeners, closes every
// active stream and waits for the connection goroutines to return.
package server
