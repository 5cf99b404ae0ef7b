// Package engine turns a byte-oriented duplex stream into an exchange of
// discrete packets.
//
// An Engine is bound to one stream and one Protocol. The protocol supplies
// the packet variant, the escape byte, the set of escaped segments and the
// acknowledgement hooks. The engine owns everything between the stream and
// the packet: segment reads with per-segment timeouts, inline unescaping,
// reconstruction, validation, and the receive and transmit retry loops.
//
// # Reading
//
// ReadPacket reads the preamble, derives the payload size from it, reads
// the payload and the postamble, reconstructs the packet and calls
// Validate. The protocol's Acknowledge hook runs with the outcome. Invalid
// packets are discarded and a fresh packet is read after ReceiveRetryDelay,
// up to ReceiveRetries times.
//
// Each stream read asks for at most the bytes still missing from the
// current segment, so the engine never consumes bytes of the next segment
// or the next packet.
//
// # Writing
//
// WritePacket calls Prepare, deconstructs the packet, writes each segment
// (escaped when selected) and calls the protocol's AwaitAck hook. A
// rejected packet is prepared and written again after TransmitRetryDelay,
// up to TransmitRetries times.
//
// # Errors
//
// Every failure is a *LinkError. Use IsTimeout, IsFraming, IsTransport and
// IsInvalidState to branch on the category:
//
//	p, err := e.ReadPacket()
//	switch {
//	case engine.IsTimeout(err):
//	    // peer went quiet
//	case engine.IsTransport(err):
//	    // retries exhausted
//	}
//
// # Concurrency
//
// An Engine is synchronous and starts no goroutines. Use one engine per
// stream from one goroutine at a time; counters may be read from anywhere.
// Closing the stream is the only way to abort a blocked call.
package engine
