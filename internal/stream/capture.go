package stream

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/pktlink/internal/logging"
	"go.uber.org/zap"
)

// Capture directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// CaptureRecord is one chunk of bytes that crossed a captured stream.
type CaptureRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Seq        int       `json:"seq"`
	RemoteAddr string    `json:"remote_addr"`
	Direction  string    `json:"direction"`
	Length     int       `json:"length"`
	Hex        string    `json:"hex"`
	ASCII      string    `json:"ascii"`
}

// Bytes decodes the captured chunk.
func (r CaptureRecord) Bytes() ([]byte, error) {
	return hex.DecodeString(r.Hex)
}

// Capture wraps a stream and appends every chunk read or written to a JSON
// Lines sink.
type Capture struct {
	rw         io.ReadWriter
	remoteAddr string

	mu   sync.Mutex
	sink io.Writer
	seq  int
}

// NewCapture records traffic of rw into sink.
func NewCapture(rw io.ReadWriter, sink io.Writer, remoteAddr string) *Capture {
	return &Capture{rw: rw, sink: sink, remoteAddr: remoteAddr}
}

// CaptureFile creates a capture file in dir named after the current time.
func CaptureFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405.000")))
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	return f, nil
}

func (c *Capture) Read(p []byte) (int, error) {
	n, err := c.rw.Read(p)
	if n > 0 {
		c.record(DirectionIn, p[:n])
	}
	return n, err
}

func (c *Capture) Write(p []byte) (int, error) {
	n, err := c.rw.Write(p)
	if n > 0 {
		c.record(DirectionOut, p[:n])
	}
	return n, err
}

func (c *Capture) SetReadDeadline(t time.Time) error {
	return setReadDeadline(c.rw, t)
}

// Close closes the wrapped stream. The sink stays open.
func (c *Capture) Close() error {
	return closeStream(c.rw)
}

func (c *Capture) record(direction string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	rec := CaptureRecord{
		Timestamp:  time.Now(),
		Seq:        c.seq,
		RemoteAddr: c.remoteAddr,
		Direction:  direction,
		Length:     len(data),
		Hex:        hex.EncodeToString(data),
		ASCII:      logging.ASCIIDump(data),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		logging.Error("Failed to marshal capture record", zap.Error(err))
		return
	}
	if _, err := c.sink.Write(append(line, '\n')); err != nil {
		logging.Error("Failed to write capture record", zap.Error(err))
	}
}

// ReadCapture parses a JSON Lines capture.
func ReadCapture(r io.Reader) ([]CaptureRecord, error) {
	var records []CaptureRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec CaptureRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Replay concatenates the captured chunks of one direction into a single
// byte stream.
func Replay(records []CaptureRecord, direction string) ([]byte, error) {
	var out []byte
	for _, rec := range records {
		if rec.Direction != direction {
			continue
		}
		b, err := rec.Bytes()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", rec.Seq, err)
		}
		out = append(out, b...)
	}
	return out, nil
}
