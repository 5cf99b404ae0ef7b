// Package stream provides the byte streams pktlink engines run on.
//
// Dial opens a stream from a target URL:
//
//	tcp://host:7070    plain TCP (the default when no scheme is given)
//	tls://host:7070    TCP with TLS
//	ws://host:7071/link    WebSocket, one binary message per write
//	wss://host:7071/link   WebSocket over TLS
//
// Every Stream supports read deadlines so engine timeouts interrupt blocked
// reads. Capture and Trace wrap a stream to record or log the raw bytes that
// cross it.
package stream
