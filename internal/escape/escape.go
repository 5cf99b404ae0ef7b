// Package escape implements the byte-stuffing scheme used on the wire.
//
// Inside an escaped segment every literal occurrence of the escape byte is
// doubled. A single escape byte followed by a control byte is reserved for
// out-of-band signals (ACK/NAK) that travel outside packet framing.
package escape

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrFraming is the root of every malformed escape sequence error.
var ErrFraming = errors.New("escape: framing error")

var (
	// ErrUnmatchedEscape reports an escape byte at the end of the input with
	// no duplicate after it. Incremental readers use it to detect a stuffed
	// pair split across two reads.
	ErrUnmatchedEscape = fmt.Errorf("%w: unmatched trailing escape byte", ErrFraming)

	// ErrInvalidEscape reports an escape byte followed by anything other than
	// a second escape byte inside stuffed data.
	ErrInvalidEscape = fmt.Errorf("%w: escape byte not followed by its duplicate", ErrFraming)

	// ErrBadSignal reports an out-of-band signal that does not start with
	// the escape byte.
	ErrBadSignal = fmt.Errorf("%w: signal does not start with escape byte", ErrFraming)
)

// Encode doubles every occurrence of esc in data. When esc is zero or data
// contains no escape byte, data itself is returned.
func Encode(data []byte, esc byte) []byte {
	if esc == 0 {
		return data
	}
	n := bytes.Count(data, []byte{esc})
	if n == 0 {
		return data
	}

	out := make([]byte, 0, len(data)+n)
	for _, b := range data {
		out = append(out, b)
		if b == esc {
			out = append(out, esc)
		}
	}
	return out
}

// Decode collapses doubled escape bytes in data[start:]. Bytes before start
// are copied through untouched, which lets a reader that accumulates a
// segment incrementally decode only the bytes it has not seen yet.
//
// When nothing needs collapsing, data itself is returned.
func Decode(data []byte, esc byte, start int) ([]byte, error) {
	if start < 0 {
		start = 0
	}
	if esc == 0 || start >= len(data) {
		return data, nil
	}
	first := bytes.IndexByte(data[start:], esc)
	if first < 0 {
		return data, nil
	}
	first += start

	out := make([]byte, first, len(data))
	copy(out, data[:first])

	escaped := false
	for pos := first; pos < len(data); pos++ {
		b := data[pos]
		switch {
		case escaped && b == esc:
			out = append(out, esc)
			escaped = false
		case escaped:
			return nil, fmt.Errorf("%w (offset %d, byte 0x%02x)", ErrInvalidEscape, pos, b)
		case b == esc:
			escaped = true
		default:
			out = append(out, b)
		}
	}
	if escaped {
		return nil, fmt.Errorf("%w (offset %d)", ErrUnmatchedEscape, len(data)-1)
	}
	return out, nil
}

// WriteSignal writes the two-byte signal (esc, ctrl) in a single write.
func WriteSignal(w io.Writer, esc, ctrl byte) error {
	if _, err := w.Write([]byte{esc, ctrl}); err != nil {
		return fmt.Errorf("write signal 0x%02x: %w", ctrl, err)
	}
	return nil
}

// ReadSignal reads exactly two bytes and returns the control byte. The
// first byte must be esc.
func ReadSignal(r io.Reader, esc byte) (byte, error) {
	var sig [2]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return 0, fmt.Errorf("read signal: %w", err)
	}
	if sig[0] != esc {
		return 0, fmt.Errorf("%w: got 0x%02x 0x%02x, want leading 0x%02x",
			ErrBadSignal, sig[0], sig[1], esc)
	}
	return sig[1], nil
}
