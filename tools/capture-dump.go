//go:build ignore

// capture-dump decodes a pktlink JSONL wire capture back into packets and
// handshake signals.
//
// Usage:
//
//	go run tools/capture-dump.go [-dir in|out] <capture.jsonl>
package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
	"github.com/muurk/pktlink/internal/packet"
	"github.com/muurk/pktlink/internal/stream"
)

// sink lets the engine acknowledge into nothing.
type sink struct{ io.Reader }

func (sink) Write(p []byte) (int, error) { return len(p), nil }

// passive decodes without answering.
type passive struct{ filexfer.Protocol }

func (passive) Acknowledge(engine.Link, packet.Packet, bool) error { return nil }

func main() {
	dir := flag.String("dir", "", "Only decode one direction (in or out)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("Usage: capture-dump [-dir in|out] <capture.jsonl>")
		fmt.Println("Example: capture-dump captures/capture-20250309-101500.000.jsonl")
		os.Exit(1)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error opening capture: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	records, err := stream.ReadCapture(f)
	if err != nil {
		fmt.Printf("Error reading capture: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== pktlink capture ===\n")
	fmt.Printf("File: %s\n", flag.Arg(0))
	fmt.Printf("Records: %d\n", len(records))

	for _, d := range []string{stream.DirectionIn, stream.DirectionOut} {
		if *dir != "" && *dir != d {
			continue
		}
		data, err := stream.Replay(records, d)
		if err != nil {
			fmt.Printf("Error replaying %s: %v\n", d, err)
			continue
		}
		fmt.Printf("\n=== %s: %d bytes ===\n", d, len(data))
		dump(data)
	}
}

// dump walks one direction of a capture. A two-byte escape+ACK/NAK pair at
// a packet boundary is taken as a signal.
func dump(data []byte) {
	r := bufio.NewReader(bytes.NewReader(data))
	e := engine.New(sink{r}, passive{}, engine.WithReadTimeout(0), engine.WithReceiveRetries(0))

	for n := 1; ; n++ {
		if sig, err := r.Peek(2); err == nil && sig[0] == filexfer.EscapeByte {
			switch sig[1] {
			case filexfer.ACK:
				fmt.Printf("#%-4d ACK\n", n)
				_, _ = r.Discard(2)
				continue
			case filexfer.NAK:
				fmt.Printf("#%-4d NAK\n", n)
				_, _ = r.Discard(2)
				continue
			}
		}
		if _, err := r.Peek(1); err != nil {
			return
		}

		pkt, err := e.ReadPacket()
		var le *engine.LinkError
		switch {
		case err == nil:
			printPacket(n, pkt, "")
		case engine.IsTransport(err) && errors.As(err, &le):
			printPacket(n, le.Packet, "  [checksum mismatch]")
		default:
			fmt.Printf("#%-4d undecodable: %v\n", n, err)
			return
		}
	}
}

func printPacket(n int, pkt packet.Packet, note string) {
	p, ok := pkt.(*filexfer.Packet)
	if !ok {
		fmt.Printf("#%-4d %s%s\n", n, packet.Describe(pkt), note)
		return
	}
	h := p.Header()
	sum := p.Checksum()
	fmt.Printf("#%-4d %-5s len=%-5d total_packets=%-4d file_size=%-8d md5=%s%s\n",
		n, h.Command, h.DataLength, h.TotalPackets, h.TotalFileSize, hex.EncodeToString(sum[:]), note)

	payload := p.Payload()
	switch {
	case h.Command != filexfer.CommandData && len(payload) > 0:
		fmt.Printf("      %q\n", payload)
	case len(payload) > 32:
		fmt.Printf("      %s...\n", hex.EncodeToString(payload[:32]))
	case len(payload) > 0:
		fmt.Printf("      %s\n", hex.EncodeToString(payload))
	}
}
