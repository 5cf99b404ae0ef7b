// Package filexfer implements chunked file transfer over a packet engine.
//
// Each packet carries an 18-byte little-endian Header, a payload of file
// bytes and the MD5 digest of that payload. Only the payload is escaped,
// with DLE (0x10). The receiver answers every packet with ACK or NAK; a NAK
// makes the sender's engine resend the packet.
//
// A file of N bytes travels as ceil(N/chunk) data packets, or one empty
// packet when N is zero. Every data packet repeats the packet count and the
// file size so the receiver can preallocate the destination from the first
// one.
//
// # Sessions
//
// Upload and Download drive the client side of a request; Serve answers a
// single request against a Store:
//
//	e := engine.New(conn, filexfer.Protocol{})
//	req, err := filexfer.Serve(e, filexfer.DirStore{Root: "/srv/files"})
//
// A request the server cannot satisfy is answered with a CommandError
// packet, which the client returns as a *RemoteError.
package filexfer
