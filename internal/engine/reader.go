package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/muurk/pktlink/internal/escape"
)

// idlePoll is the pause after a read that returns no data and no error, as
// non-blocking streams and serial lines with VMIN=0 do while idle.
const idlePoll = 10 * time.Millisecond

// deadliner is implemented by streams with a native read deadline, such as
// net.Conn. Without it the engine checks the deadline between reads only.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

func (e *Engine) deadline() time.Time {
	if e.cfg.ReadTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(e.cfg.ReadTimeout)
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && !time.Now().Before(deadline)
}

// idle sleeps for idlePoll, or less when the deadline comes first.
func idle(deadline time.Time) {
	d := idlePoll
	if !deadline.IsZero() {
		d = min(d, time.Until(deadline))
	}
	if d > 0 {
		time.Sleep(d)
	}
}

func (e *Engine) armDeadline(deadline time.Time) error {
	if d, ok := e.stream.(deadliner); ok && !deadline.IsZero() {
		// wrappers report ErrUnsupported when the stream they wrap has no deadline
		if err := d.SetReadDeadline(deadline); err != nil && !errors.Is(err, errors.ErrUnsupported) {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}
	return nil
}

func (e *Engine) disarmDeadline() {
	if d, ok := e.stream.(deadliner); ok && e.cfg.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Time{})
	}
}

// readSegment reads n decoded bytes. When escaped is set the bytes are
// unescaped as they arrive, so n counts bytes after unescaping.
func (e *Engine) readSegment(n int, escaped bool) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	deadline := e.deadline()
	if err := e.armDeadline(deadline); err != nil {
		return nil, err
	}
	defer e.disarmDeadline()

	out := make([]byte, 0, n)
	buf := make([]byte, min(n, e.cfg.BufferSize))

	for len(out) < n {
		if expired(deadline) {
			return nil, ErrTimeout
		}

		k, err := e.stream.Read(buf[:min(n-len(out), len(buf))])
		if k > 0 {
			decoded := len(out)
			out = append(out, buf[:k]...)
			if escaped {
				var uerr error
				if out, uerr = e.unescape(out, decoded, deadline); uerr != nil {
					return nil, uerr
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) && len(out) > 0 && len(out) < n {
				err = io.ErrUnexpectedEOF
			}
			if len(out) == n && errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if k == 0 {
			idle(deadline)
		}
	}
	return out, nil
}

// unescape collapses escape pairs in data[start:]. A chunk that ends on the
// first byte of a pair pulls exactly one more byte from the stream, which
// must complete the pair.
func (e *Engine) unescape(data []byte, start int, deadline time.Time) ([]byte, error) {
	out, err := escape.Decode(data, e.esc, start)
	if !errors.Is(err, escape.ErrUnmatchedEscape) {
		return out, err
	}

	var one [1]byte
	if _, err := io.ReadFull(&deadlineReader{e: e, deadline: deadline}, one[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if one[0] != e.esc {
		return nil, fmt.Errorf("%w: 0x%02x after escape byte", escape.ErrInvalidEscape, one[0])
	}
	return escape.Decode(append(data, one[0]), e.esc, start)
}
