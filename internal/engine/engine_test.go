package engine

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/muurk/pktlink/internal/escape"
	"github.com/muurk/pktlink/internal/packet"
)

const (
	testEsc = 0x10
	testAck = 0x06
	testNak = 0x15
)

type testHeader struct {
	Length uint16
}

type testTrailer struct {
	Sum uint8
}

var testLayout = packet.NewLayout("test", testHeader{}, byte(0), testTrailer{}, nil)

// testPacket carries a byte payload guarded by an 8-bit sum.
type testPacket struct {
	packet.Frame
}

func newTestPacket(payload []byte) *testPacket {
	p := &testPacket{Frame: packet.NewFrame(testLayout)}
	p.SetValue(packet.Preamble, &testHeader{})
	p.SetValue(packet.Payload, payload)
	p.SetValue(packet.Postamble, &testTrailer{})
	return p
}

func (p *testPacket) header() *testHeader {
	h, _ := p.Value(packet.Preamble).(*testHeader)
	return h
}

func (p *testPacket) trailer() *testTrailer {
	t, _ := p.Value(packet.Postamble).(*testTrailer)
	return t
}

func (p *testPacket) payload() []byte {
	b, _ := p.Value(packet.Payload).([]byte)
	return b
}

func sum(b []byte) uint8 {
	var s uint8
	for _, c := range b {
		s += c
	}
	return s
}

func (p *testPacket) PayloadSize() int {
	if h := p.header(); h != nil {
		return int(h.Length)
	}
	return 0
}

func (p *testPacket) Prepare() error {
	h, t := p.header(), p.trailer()
	if h == nil || t == nil {
		return errors.New("header or trailer missing")
	}
	h.Length = uint16(len(p.payload()))
	t.Sum = sum(p.payload())
	return nil
}

func (p *testPacket) Validate() bool {
	t := p.trailer()
	return t != nil && t.Sum == sum(p.payload())
}

// testProtocol escapes the payload and has no handshake.
type testProtocol struct {
	BaseProtocol
}

func (testProtocol) Name() string                    { return "test" }
func (testProtocol) NewPacket() packet.Packet        { return &testPacket{Frame: packet.NewFrame(testLayout)} }
func (testProtocol) EscapeByte() byte                { return testEsc }
func (testProtocol) EscapedSegments() packet.Segment { return packet.Payload }

// ackProtocol adds an ACK/NAK handshake and records acknowledgements.
type ackProtocol struct {
	testProtocol
	acks []bool
}

func (a *ackProtocol) AwaitAck(link Link, _ packet.Packet) (bool, error) {
	ctrl, err := link.ReadSignal()
	if err != nil {
		return false, err
	}
	switch ctrl {
	case testAck:
		return true, nil
	case testNak:
		return false, nil
	default:
		return false, escape.ErrBadSignal
	}
}

func (a *ackProtocol) Acknowledge(link Link, _ packet.Packet, valid bool) error {
	a.acks = append(a.acks, valid)
	if valid {
		return link.WriteSignal(testAck)
	}
	return link.WriteSignal(testNak)
}

// scriptStream replays chunks, at most one chunk per Read, and records writes.
type scriptStream struct {
	chunks  [][]byte
	written bytes.Buffer
}

func newScriptStream(chunks ...[]byte) *scriptStream {
	s := &scriptStream{}
	for _, c := range chunks {
		s.chunks = append(s.chunks, append([]byte(nil), c...))
	}
	return s
}

func (s *scriptStream) Read(p []byte) (int, error) {
	for len(s.chunks) > 0 && len(s.chunks[0]) == 0 {
		s.chunks = s.chunks[1:]
	}
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	s.chunks[0] = s.chunks[0][n:]
	return n, nil
}

func (s *scriptStream) Write(p []byte) (int, error) {
	return s.written.Write(p)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestWritePacketWireFormat(t *testing.T) {
	s := newScriptStream()
	e := New(s, testProtocol{})

	if err := e.WritePacket(newTestPacket([]byte{0x01, 0x10, 0x02})); err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}

	want := []byte{0x03, 0x00, 0x01, 0x10, 0x10, 0x02, 0x13}
	if !bytes.Equal(s.written.Bytes(), want) {
		t.Errorf("wire = % x, want % x", s.written.Bytes(), want)
	}
	if e.PacketsSent() != 1 {
		t.Errorf("PacketsSent() = %d, want 1", e.PacketsSent())
	}
}

func TestReadPacketAcrossSplits(t *testing.T) {
	payload := []byte{0x41, 0x10, 0x42, 0x10, 0x10}
	writer := newScriptStream()
	if err := New(writer, testProtocol{}).WritePacket(newTestPacket(payload)); err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	wire := writer.written.Bytes()

	for _, bufSize := range []int{1, 2, 1024} {
		for split := 1; split < len(wire); split++ {
			s := newScriptStream(wire[:split], wire[split:])
			e := New(s, testProtocol{}, WithBufferSize(bufSize))

			p, err := e.ReadPacket()
			if err != nil {
				t.Fatalf("buffer %d split %d: ReadPacket() error: %v", bufSize, split, err)
			}
			got := p.(*testPacket)
			if !bytes.Equal(got.payload(), payload) {
				t.Errorf("buffer %d split %d: payload = % x, want % x", bufSize, split, got.payload(), payload)
			}
			if !bytes.Equal(got.Bytes(), []byte{0x05, 0x00, 0x41, 0x10, 0x42, 0x10, 0x10, 0xb3}) {
				t.Errorf("buffer %d split %d: raw = % x", bufSize, split, got.Bytes())
			}
		}
	}
}

func TestReadPacketLeavesNextPacketUnread(t *testing.T) {
	first := []byte{0x01, 0x00, 0x10, 0x10, 0x10}
	second := []byte{0x02, 0x00, 0x01, 0x02, 0x03}
	s := newScriptStream(concat(first, second))
	e := New(s, testProtocol{})

	for i, want := range [][]byte{{0x10}, {0x01, 0x02}} {
		p, err := e.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: ReadPacket() error: %v", i, err)
		}
		if got := p.(*testPacket).payload(); !bytes.Equal(got, want) {
			t.Errorf("packet %d: payload = % x, want % x", i, got, want)
		}
	}
	if e.PacketsReceived() != 2 {
		t.Errorf("PacketsReceived() = %d, want 2", e.PacketsReceived())
	}
}

func TestReadPacketEmptyPayload(t *testing.T) {
	e := New(newScriptStream([]byte{0x00, 0x00, 0x00}), testProtocol{})

	p, err := e.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if n := len(p.(*testPacket).payload()); n != 0 {
		t.Errorf("payload length = %d, want 0", n)
	}
}

func TestReceiveRetryExhaustion(t *testing.T) {
	bad := []byte{0x01, 0x00, 0x05, 0x00}
	s := newScriptStream(bad, bad, bad, bad, bad)
	proto := &ackProtocol{}
	delay := 20 * time.Millisecond
	e := New(s, proto, WithReceiveRetries(3), WithReceiveRetryDelay(delay))

	start := time.Now()
	_, err := e.ReadPacket()
	elapsed := time.Since(start)

	if !IsTransport(err) {
		t.Fatalf("ReadPacket() error = %v, want Transport", err)
	}
	var le *LinkError
	if !errors.As(err, &le) {
		t.Fatal("error is not a *LinkError")
	}
	if le.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", le.Attempts)
	}
	if le.Packet == nil {
		t.Error("Transport error should carry the last packet")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error should wrap ErrValidation: %v", err)
	}
	if len(proto.acks) != 4 {
		t.Errorf("Acknowledge called %d times, want 4", len(proto.acks))
	}
	if elapsed < 3*delay {
		t.Errorf("elapsed %v, want at least %v", elapsed, 3*delay)
	}
	if e.ReceiveRetryCount() != 3 {
		t.Errorf("ReceiveRetryCount() = %d, want 3", e.ReceiveRetryCount())
	}
	if e.PacketsReceived() != 0 {
		t.Errorf("PacketsReceived() = %d, want 0", e.PacketsReceived())
	}
	nak := []byte{testEsc, testNak}
	if want := concat(nak, nak, nak, nak); !bytes.Equal(s.written.Bytes(), want) {
		t.Errorf("acknowledgements = % x, want % x", s.written.Bytes(), want)
	}
}

func TestReceiveRetryRecovers(t *testing.T) {
	bad := []byte{0x01, 0x00, 0x05, 0x00}
	good := []byte{0x01, 0x00, 0x05, 0x05}
	s := newScriptStream(bad, good)
	proto := &ackProtocol{}
	e := New(s, proto, WithReceiveRetryDelay(0))

	if _, err := e.ReadPacket(); err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if want := []bool{false, true}; len(proto.acks) != 2 || proto.acks[0] != want[0] || proto.acks[1] != want[1] {
		t.Errorf("acks = %v, want %v", proto.acks, want)
	}
	if e.ReceiveRetryCount() != 1 || e.PacketsReceived() != 1 {
		t.Errorf("retries = %d received = %d, want 1 and 1", e.ReceiveRetryCount(), e.PacketsReceived())
	}
}

func TestReadFramingErrors(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
		opts   []Option
		target error
	}{
		{
			name:   "escape followed by data",
			chunks: [][]byte{{0x02, 0x00, 0x10, 0x41, 0x00}},
			target: escape.ErrInvalidEscape,
		},
		{
			name:   "dangling escape completed by data",
			chunks: [][]byte{{0x02, 0x00, 0x10}, {0x41, 0x00}},
			target: escape.ErrInvalidEscape,
		},
		{
			name:   "payload over limit",
			chunks: [][]byte{{0x05, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x0f}},
			opts:   []Option{WithMaxPayloadSize(4)},
			target: ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(newScriptStream(tt.chunks...), testProtocol{}, tt.opts...)
			_, err := e.ReadPacket()
			if !IsFraming(err) {
				t.Fatalf("ReadPacket() error = %v, want Framing", err)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("error should wrap %v: %v", tt.target, err)
			}
			if !errors.Is(err, escape.ErrFraming) {
				t.Errorf("error should wrap escape.ErrFraming: %v", err)
			}
		})
	}
}

func TestReadTimeoutWithDeadline(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	e := New(local, testProtocol{}, WithReadTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := e.ReadPacket()
	if !IsTimeout(err) {
		t.Fatalf("ReadPacket() error = %v, want Timeout", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("error should wrap os.ErrDeadlineExceeded: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

// slowStream returns one byte per read after a delay and has no deadline
// support.
type slowStream struct {
	delay time.Duration
	b     byte
}

func (s slowStream) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	p[0] = s.b
	return 1, nil
}

func (s slowStream) Write(p []byte) (int, error) { return len(p), nil }

func TestReadTimeoutWithoutDeadline(t *testing.T) {
	e := New(slowStream{delay: 20 * time.Millisecond, b: 0x05}, testProtocol{},
		WithReadTimeout(50*time.Millisecond))

	_, err := e.ReadPacket()
	if !IsTimeout(err) {
		t.Fatalf("ReadPacket() error = %v, want Timeout", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error should wrap ErrTimeout: %v", err)
	}
}

// idleStream returns no data and no error until ready, as a non-blocking
// stream does, then serves data.
type idleStream struct {
	ready time.Time
	data  *scriptStream
	reads int
}

func (s *idleStream) Read(p []byte) (int, error) {
	s.reads++
	if time.Now().Before(s.ready) {
		return 0, nil
	}
	return s.data.Read(p)
}

func (s *idleStream) Write(p []byte) (int, error) { return len(p), nil }

func TestReadIdleStream(t *testing.T) {
	s := &idleStream{
		ready: time.Now().Add(150 * time.Millisecond),
		data:  newScriptStream([]byte{0x03, 0x00, 0x01, 0x02, 0x03, 0x06}),
	}
	e := New(s, testProtocol{}, WithReadTimeout(2*time.Second))

	p, err := e.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if got := p.(*testPacket).payload(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("payload = % x, want 01 02 03", got)
	}
	if s.reads < 2 {
		t.Errorf("reads = %d, want idle reads before the data", s.reads)
	}
}

func TestReadIdleStreamTimeout(t *testing.T) {
	timeout := 100 * time.Millisecond
	s := &idleStream{ready: time.Now().Add(time.Hour), data: newScriptStream()}
	e := New(s, testProtocol{}, WithReadTimeout(timeout))

	start := time.Now()
	_, err := e.ReadPacket()
	elapsed := time.Since(start)

	if !IsTimeout(err) {
		t.Fatalf("ReadPacket() error = %v, want Timeout", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error should wrap ErrTimeout: %v", err)
	}
	if elapsed < timeout {
		t.Errorf("timed out after %v, want at least %v", elapsed, timeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestReadErrorCarriesPartialPacket(t *testing.T) {
	e := New(newScriptStream([]byte{0x02, 0x00, 0x10, 0x41, 0x00}), testProtocol{})

	_, err := e.ReadPacket()
	if !IsFraming(err) {
		t.Fatalf("ReadPacket() error = %v, want Framing", err)
	}
	var le *LinkError
	if !errors.As(err, &le) {
		t.Fatal("error is not a *LinkError")
	}
	if le.Packet == nil {
		t.Fatal("Framing error should carry the partly read packet")
	}
	if got := le.Packet.PayloadSize(); got != 2 {
		t.Errorf("PayloadSize() = %d, want 2 from the decoded preamble", got)
	}
}

func TestReadClosedStream(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
	}{
		{"empty", nil},
		{"mid preamble", [][]byte{{0x01}}},
		{"mid payload", [][]byte{{0x03, 0x00, 0x01}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(newScriptStream(tt.chunks...), testProtocol{})
			_, err := e.ReadPacket()
			if !IsClosed(err) {
				t.Errorf("ReadPacket() error = %v, want closed stream", err)
			}
			if Classify(err) != ErrTypeIO {
				t.Errorf("Classify() = %v, want %v", Classify(err), ErrTypeIO)
			}
		})
	}
}

func TestTransmitRetryExhaustion(t *testing.T) {
	nak := []byte{testEsc, testNak}
	s := newScriptStream(nak, nak, nak, nak)
	e := New(s, &ackProtocol{}, WithTransmitRetries(3), WithTransmitRetryDelay(time.Millisecond))

	err := e.WritePacket(newTestPacket([]byte{0x07}))
	if !IsTransport(err) {
		t.Fatalf("WritePacket() error = %v, want Transport", err)
	}
	if !errors.Is(err, ErrRejected) {
		t.Errorf("error should wrap ErrRejected: %v", err)
	}

	wire := []byte{0x01, 0x00, 0x07, 0x07}
	if want := concat(wire, wire, wire, wire); !bytes.Equal(s.written.Bytes(), want) {
		t.Errorf("written = % x, want % x", s.written.Bytes(), want)
	}
	if e.TransmitRetryCount() != 3 {
		t.Errorf("TransmitRetryCount() = %d, want 3", e.TransmitRetryCount())
	}
	if e.PacketsSent() != 0 {
		t.Errorf("PacketsSent() = %d, want 0", e.PacketsSent())
	}
}

func TestTransmitRetryThenAccept(t *testing.T) {
	s := newScriptStream([]byte{testEsc, testNak}, []byte{testEsc, testAck})
	e := New(s, &ackProtocol{}, WithTransmitRetryDelay(0))

	if err := e.WritePacket(newTestPacket([]byte{0x07})); err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	if e.PacketsSent() != 1 || e.TransmitRetryCount() != 1 {
		t.Errorf("sent = %d retries = %d, want 1 and 1", e.PacketsSent(), e.TransmitRetryCount())
	}
}

func TestAwaitAckBadSignal(t *testing.T) {
	tests := []struct {
		name   string
		signal []byte
	}{
		{"wrong leading byte", []byte{0x41, testAck}},
		{"unknown control", []byte{testEsc, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(newScriptStream(tt.signal), &ackProtocol{})
			err := e.WritePacket(newTestPacket([]byte{0x01}))
			if !IsFraming(err) {
				t.Errorf("WritePacket() error = %v, want Framing", err)
			}
		})
	}
}

func TestWritePacketInvalidState(t *testing.T) {
	s := newScriptStream()
	e := New(s, testProtocol{})

	err := e.WritePacket(&testPacket{Frame: packet.NewFrame(testLayout)})
	if !IsInvalidState(err) {
		t.Fatalf("WritePacket() error = %v, want InvalidState", err)
	}
	if !errors.Is(err, packet.ErrInvalidState) {
		t.Errorf("error should wrap packet.ErrInvalidState: %v", err)
	}
	if s.written.Len() != 0 {
		t.Errorf("wrote %d bytes, want none", s.written.Len())
	}
}

func TestPipeRoundTripWithHandshake(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	sender := New(local, &ackProtocol{}, WithReadTimeout(2*time.Second))
	receiver := New(remote, &ackProtocol{}, WithReadTimeout(2*time.Second))

	payloads := [][]byte{
		{},
		{0x10},
		bytes.Repeat([]byte{0x10, 0x00, 0xff}, 300),
	}

	errc := make(chan error, 1)
	go func() {
		for _, p := range payloads {
			if err := sender.WritePacket(newTestPacket(p)); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()

	for i, want := range payloads {
		p, err := receiver.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: ReadPacket() error: %v", i, err)
		}
		if got := p.(*testPacket).payload(); !bytes.Equal(got, want) {
			t.Errorf("packet %d: payload mismatch (%d bytes, want %d)", i, len(got), len(want))
		}
	}
	if err := <-errc; err != nil {
		t.Fatalf("sender error: %v", err)
	}
	if sender.PacketsSent() != 3 || receiver.PacketsReceived() != 3 {
		t.Errorf("sent = %d received = %d, want 3 and 3", sender.PacketsSent(), receiver.PacketsReceived())
	}
}

func TestLinkReadSignalTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	e := New(local, testProtocol{}, WithReadTimeout(30*time.Millisecond))
	if _, err := e.Link().ReadSignal(); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("ReadSignal() error = %v, want deadline exceeded", err)
	}
}
