package filexfer

import (
	"crypto/md5"
	"fmt"

	"github.com/muurk/pktlink/internal/packet"
)

// Command identifies what a packet carries.
type Command uint16

const (
	// CommandData carries one chunk of file content
	CommandData Command = iota
	// CommandPut announces an upload; the payload is the file name
	CommandPut
	// CommandGet requests a download; the payload is the file name
	CommandGet
	// CommandError aborts a transfer; the payload is the message
	CommandError
)

func (c Command) String() string {
	switch c {
	case CommandData:
		return "data"
	case CommandPut:
		return "put"
	case CommandGet:
		return "get"
	case CommandError:
		return "error"
	default:
		return fmt.Sprintf("Command(%d)", uint16(c))
	}
}

// Header is the packet preamble, encoded little endian in 18 bytes.
type Header struct {
	DataLength    uint32
	TotalPackets  uint32
	Command       Command
	TotalFileSize uint64
}

// Checksum is the packet postamble: the MD5 digest of the payload.
type Checksum [md5.Size]byte

// Layout is shared by every file-transfer packet.
var Layout = packet.NewLayout("filexfer", Header{}, byte(0), Checksum{}, packet.LittleEndian)

// Packet is a file-transfer packet.
type Packet struct {
	packet.Frame
}

// NewPacket returns a packet ready to send. The payload is referenced, not
// copied.
func NewPacket(cmd Command, payload []byte) *Packet {
	p := newEmptyPacket()
	p.SetValue(packet.Preamble, &Header{Command: cmd})
	p.SetValue(packet.Payload, payload)
	p.SetValue(packet.Postamble, &Checksum{})
	return p
}

func newEmptyPacket() *Packet {
	return &Packet{Frame: packet.NewFrame(Layout)}
}

// Header returns the preamble, or nil before it has been read.
func (p *Packet) Header() *Header {
	h, _ := p.Value(packet.Preamble).(*Header)
	return h
}

// Payload returns the payload bytes.
func (p *Packet) Payload() []byte {
	b, _ := p.Value(packet.Payload).([]byte)
	return b
}

// Checksum returns the postamble digest.
func (p *Packet) Checksum() Checksum {
	if c, ok := p.Value(packet.Postamble).(*Checksum); ok {
		return *c
	}
	return Checksum{}
}

func (p *Packet) PayloadSize() int {
	if h := p.Header(); h != nil {
		return int(h.DataLength)
	}
	return 0
}

// Prepare sets DataLength and the checksum from the current payload.
func (p *Packet) Prepare() error {
	h := p.Header()
	c, ok := p.Value(packet.Postamble).(*Checksum)
	if h == nil || !ok {
		return fmt.Errorf("filexfer: packet has no header or checksum")
	}
	payload := p.Payload()
	h.DataLength = uint32(len(payload))
	*c = md5.Sum(payload)
	return nil
}

// Verify recomputes the checksum over the payload.
func (p *Packet) Verify() error {
	got := Checksum(md5.Sum(p.Payload()))
	if want := p.Checksum(); got != want {
		return &ChecksumMismatchError{Want: want, Got: got}
	}
	return nil
}

func (p *Packet) Validate() bool {
	return p.Verify() == nil
}

// packetCount returns the number of data packets for size bytes. An empty
// file still takes one packet.
func packetCount(size int64, chunk int) uint32 {
	if size <= 0 {
		return 1
	}
	return uint32((size + int64(chunk) - 1) / int64(chunk))
}
