package filexfer

import (
	"bytes"
	"math/rand/v2"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/muurk/pktlink/internal/engine"
)

// memFile is an in-memory io.WriterAt that records preallocation.
type memFile struct {
	mu        sync.Mutex
	data      []byte
	truncated int64
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if end := int(off) + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	return copy(m.data[off:], p), nil
}

func (m *memFile) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncated = size
	if int(size) < len(m.data) {
		m.data = m.data[:size]
	} else {
		m.data = append(m.data, make([]byte, int(size)-len(m.data))...)
	}
	return nil
}

// corruptingConn flips one byte of the first write at least minLen long.
type corruptingConn struct {
	net.Conn
	minLen int
	done   bool
}

func (c *corruptingConn) Write(p []byte) (int, error) {
	if c.done || len(p) < c.minLen {
		return c.Conn.Write(p)
	}
	c.done = true

	bad := append([]byte(nil), p...)
	for i, b := range bad {
		// keep escape pairs intact so only the checksum catches it
		if b != EscapeByte && b^0x01 != EscapeByte {
			bad[i] ^= 0x01
			break
		}
	}
	return c.Conn.Write(bad)
}

func testData(n int) []byte {
	r := rand.New(rand.NewPCG(42, 7))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.UintN(256))
	}
	// make sure escaping is exercised
	for i := 0; i < n; i += 97 {
		data[i] = EscapeByte
	}
	return data
}

func enginePair(t *testing.T) (local, remote net.Conn, opts []engine.Option) {
	t.Helper()
	local, remote = net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	opts = []engine.Option{
		engine.WithReadTimeout(5 * time.Second),
		engine.WithRetries(3, 0),
	}
	return local, remote, opts
}

func TestTransferChunking(t *testing.T) {
	local, remote, opts := enginePair(t)
	sender := engine.New(local, Protocol{}, opts...)
	receiver := engine.New(remote, Protocol{}, opts...)

	data := testData(5000)

	var sizes []int64
	var last int64
	progress := WithProgress(func(p Progress) {
		sizes = append(sizes, p.Bytes-last)
		last = p.Bytes
	})

	errc := make(chan error, 1)
	go func() {
		errc <- NewSender(sender, WithChunkSize(2048)).Send(bytes.NewReader(data), int64(len(data)))
	}()

	dst := &memFile{}
	n, err := NewReceiver(receiver, progress).Receive(dst)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if n != 5000 {
		t.Errorf("received %d bytes, want 5000", n)
	}
	if dst.truncated != 5000 {
		t.Errorf("preallocated %d bytes, want 5000", dst.truncated)
	}
	if !bytes.Equal(dst.data, data) {
		t.Error("received file differs from source")
	}
	if want := []int64{2048, 2048, 904}; !equalInt64s(sizes, want) {
		t.Errorf("packet sizes = %v, want %v", sizes, want)
	}
	if sender.PacketsSent() != 3 || receiver.PacketsReceived() != 3 {
		t.Errorf("sent = %d received = %d, want 3 and 3", sender.PacketsSent(), receiver.PacketsReceived())
	}
	if sender.TransmitRetryCount() != 0 || receiver.ReceiveRetryCount() != 0 {
		t.Errorf("unexpected retries: transmit %d receive %d",
			sender.TransmitRetryCount(), receiver.ReceiveRetryCount())
	}
}

func TestTransferRecoversFromCorruption(t *testing.T) {
	local, remote, opts := enginePair(t)
	sender := engine.New(&corruptingConn{Conn: local, minLen: 2048}, Protocol{}, opts...)
	receiver := engine.New(remote, Protocol{}, opts...)

	data := testData(5000)

	errc := make(chan error, 1)
	go func() {
		errc <- NewSender(sender, WithChunkSize(2048)).Send(bytes.NewReader(data), int64(len(data)))
	}()

	dst := &memFile{}
	if _, err := NewReceiver(receiver).Receive(dst); err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if !bytes.Equal(dst.data, data) {
		t.Error("received file differs from source")
	}
	if got := sender.TransmitRetryCount(); got != 1 {
		t.Errorf("TransmitRetryCount() = %d, want 1", got)
	}
	if got := receiver.ReceiveRetryCount(); got != 1 {
		t.Errorf("ReceiveRetryCount() = %d, want 1", got)
	}
	if sender.PacketsSent() != 3 || receiver.PacketsReceived() != 3 {
		t.Errorf("sent = %d received = %d, want 3 and 3", sender.PacketsSent(), receiver.PacketsReceived())
	}
}

func TestTransferEmptyFile(t *testing.T) {
	local, remote, opts := enginePair(t)
	sender := engine.New(local, Protocol{}, opts...)
	receiver := engine.New(remote, Protocol{}, opts...)

	errc := make(chan error, 1)
	go func() {
		errc <- NewSender(sender).Send(bytes.NewReader(nil), 0)
	}()

	dst := &memFile{}
	n, err := NewReceiver(receiver).Receive(dst)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if n != 0 || len(dst.data) != 0 {
		t.Errorf("received %d bytes, want 0", n)
	}
	if sender.PacketsSent() != 1 {
		t.Errorf("PacketsSent() = %d, want 1", sender.PacketsSent())
	}
}

func TestSendShortReader(t *testing.T) {
	local, remote, opts := enginePair(t)
	sender := engine.New(local, Protocol{}, opts...)
	receiver := engine.New(remote, Protocol{}, opts...)

	go func() {
		NewReceiver(receiver).Receive(&memFile{})
	}()

	err := NewSender(sender, WithChunkSize(4)).Send(bytes.NewReader([]byte("abcdef")), 10)
	if err == nil {
		t.Fatal("Send() with a short reader should fail")
	}
}

func equalInt64s(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
