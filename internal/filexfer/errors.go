package filexfer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/muurk/pktlink/internal/packet"
)

var (
	// ErrUnexpectedCommand reports a packet that does not fit the session state.
	ErrUnexpectedCommand = errors.New("filexfer: unexpected command")

	// ErrInvalidName reports a file name a store refuses.
	ErrInvalidName = errors.New("filexfer: invalid file name")

	// ErrSizeMismatch reports a transfer whose length differs from the announced size.
	ErrSizeMismatch = errors.New("filexfer: size mismatch")
)

// RemoteError carries the message of a CommandError packet from the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}

// ChecksumMismatchError reports a payload whose digest differs from the
// postamble.
type ChecksumMismatchError struct {
	Want Checksum
	Got  Checksum
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: packet carries %s, payload hashes to %s",
		hex.EncodeToString(e.Want[:]), hex.EncodeToString(e.Got[:]))
}

func unexpected(cmd Command, want string) error {
	return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedCommand, cmd, want)
}

func asPacket(p packet.Packet) (*Packet, error) {
	fp, ok := p.(*Packet)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a file-transfer packet", ErrUnexpectedCommand, packet.Describe(p))
	}
	return fp, nil
}
