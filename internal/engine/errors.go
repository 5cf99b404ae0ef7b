package engine

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/muurk/pktlink/internal/escape"
	"github.com/muurk/pktlink/internal/packet"
)

// ErrorType represents the category of a failed packet operation
type ErrorType int

const (
	// ErrTypeTimeout indicates a segment or signal did not arrive in time
	ErrTypeTimeout ErrorType = iota
	// ErrTypeFraming indicates malformed escaping, a bad signal or an impossible size
	ErrTypeFraming
	// ErrTypeTransport indicates the retry budget was exhausted
	ErrTypeTransport
	// ErrTypeInvalidState indicates a conversion without its prerequisite data
	ErrTypeInvalidState
	// ErrTypeIO indicates the stream failed or was closed
	ErrTypeIO
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeFraming:
		return "Framing Error"
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeInvalidState:
		return "Invalid State"
	case ErrTypeIO:
		return "I/O Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Label returns the short lowercase name used as a metrics label.
func (et ErrorType) Label() string {
	switch et {
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeFraming:
		return "framing"
	case ErrTypeTransport:
		return "transport"
	case ErrTypeInvalidState:
		return "invalid_state"
	case ErrTypeIO:
		return "io"
	default:
		return "unknown"
	}
}

// Operation names used in LinkError.Op.
const (
	OpRead  = "read"
	OpWrite = "write"
)

var (
	// ErrTimeout is the cause of timeouts detected by the engine itself,
	// for streams without read deadlines.
	ErrTimeout = errors.New("read timed out")

	// ErrValidation is the cause of a receive Transport error.
	ErrValidation = errors.New("packet failed validation")

	// ErrRejected is the cause of a transmit Transport error.
	ErrRejected = errors.New("packet rejected by peer")

	// ErrPayloadTooLarge reports a declared payload size the engine refuses.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload size out of range", escape.ErrFraming)
)

// LinkError represents a failed ReadPacket or WritePacket call
type LinkError struct {
	Type     ErrorType     // Category of error
	Op       string        // OpRead or OpWrite
	Attempts int           // Attempts made, including the failing one
	Packet   packet.Packet // Packet in flight when the call failed, possibly partial
	Err      error         // Underlying error
}

// Error implements the error interface
func (e *LinkError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Type)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Packet != nil {
		msg = fmt.Sprintf("%s (%s)", msg, packet.Describe(e.Packet))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *LinkError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by the stream, the packet layer or a
// protocol hook onto an ErrorType.
func Classify(err error) ErrorType {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Type
	}

	switch {
	case errors.Is(err, escape.ErrFraming):
		return ErrTypeFraming
	case errors.Is(err, packet.ErrInvalidState):
		return ErrTypeInvalidState
	case isTimeout(err):
		return ErrTypeTimeout
	default:
		return ErrTypeIO
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newLinkError(op string, attempts int, err error) *LinkError {
	var le *LinkError
	if errors.As(err, &le) {
		return le
	}
	return &LinkError{Type: Classify(err), Op: op, Attempts: attempts, Err: err}
}

func hasType(err error, t ErrorType) bool {
	var le *LinkError
	return errors.As(err, &le) && le.Type == t
}

// IsTimeout reports whether err is a Timeout LinkError.
func IsTimeout(err error) bool { return hasType(err, ErrTypeTimeout) }

// IsFraming reports whether err is a Framing LinkError.
func IsFraming(err error) bool { return hasType(err, ErrTypeFraming) }

// IsTransport reports whether err is a Transport LinkError.
func IsTransport(err error) bool { return hasType(err, ErrTypeTransport) }

// IsInvalidState reports whether err is an InvalidState LinkError.
func IsInvalidState(err error) bool { return hasType(err, ErrTypeInvalidState) }

// IsClosed reports whether err means the stream ended or was closed.
func IsClosed(err error) bool {
	return hasType(err, ErrTypeIO) &&
		(errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
			errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed))
}
