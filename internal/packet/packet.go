// Package packet models a framed packet as three ordered segments and
// converts each segment between its structured and raw form.
package packet

import (
	"errors"
	"fmt"
)

// ErrInvalidState reports a conversion whose prerequisite data is missing.
// It always indicates a programming error in the caller or the variant.
var ErrInvalidState = errors.New("packet: invalid state")

// Packet is implemented by every concrete packet variant. Variants embed
// Frame and supply the three hooks below.
type Packet interface {
	Segments() *Frame

	// PayloadSize returns the payload length in bytes. It must be derivable
	// from the preamble alone.
	PayloadSize() int

	// Prepare derives fields (checksums, lengths) before every transmit
	// attempt. It must be idempotent.
	Prepare() error

	// Validate checks derived fields after every receive attempt, once the
	// packet has been reconstructed.
	Validate() bool
}

// Deconstruct serializes the structured value of every segment in mask into
// its raw form.
func Deconstruct(p Packet, mask Segment) error {
	f := p.Segments()
	for _, seg := range WireOrder {
		if !mask.Has(seg) {
			continue
		}
		raw, err := encodeSegment(p, f, seg)
		if err != nil {
			return err
		}
		f.storeRaw(seg, raw)
	}
	return nil
}

// Reconstruct decodes the raw bytes of every segment in mask into fresh
// structured values.
func Reconstruct(p Packet, mask Segment) error {
	f := p.Segments()
	for _, seg := range WireOrder {
		if !mask.Has(seg) {
			continue
		}
		v, err := decodeSegment(f, seg)
		if err != nil {
			return err
		}
		f.storeValue(seg, v)
	}
	return nil
}

func encodeSegment(p Packet, f *Frame, seg Segment) ([]byte, error) {
	l := f.layout
	if !l.Declares(seg) {
		return nil, nil
	}
	v := f.values[seg.index()]

	if seg == Payload {
		want := p.PayloadSize()
		if v == nil {
			if want == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %s payload missing, %d bytes declared", ErrInvalidState, l.name, want)
		}
		raw, err := l.codec.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s encode payload: %w", ErrInvalidState, l.name, err)
		}
		if len(raw) != want {
			return nil, fmt.Errorf("%w: %s payload is %d bytes, %d declared", ErrInvalidState, l.name, len(raw), want)
		}
		return raw, nil
	}

	if v == nil {
		return nil, fmt.Errorf("%w: %s %s value missing", ErrInvalidState, l.name, seg)
	}
	raw, err := l.codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s encode %s: %w", ErrInvalidState, l.name, seg, err)
	}
	if len(raw) != l.Size(seg) {
		return nil, fmt.Errorf("%w: %s %s encodes to %d bytes, layout declares %d",
			ErrInvalidState, l.name, seg, len(raw), l.Size(seg))
	}
	return raw, nil
}

func decodeSegment(f *Frame, seg Segment) (any, error) {
	l := f.layout
	if !l.Declares(seg) {
		return nil, nil
	}
	if !f.rawSet.Has(seg) {
		return nil, fmt.Errorf("%w: %s %s has no raw bytes", ErrInvalidState, l.name, seg)
	}
	raw := f.raw[seg.index()]

	var v any
	if seg == Payload {
		if len(raw)%l.elemSize != 0 {
			return nil, fmt.Errorf("%w: %s payload of %d bytes is not a multiple of %d",
				ErrInvalidState, l.name, len(raw), l.elemSize)
		}
		v = l.newValue(seg, len(raw)/l.elemSize)
		if len(raw) == 0 {
			return v, nil
		}
	} else {
		if len(raw) != l.Size(seg) {
			return nil, fmt.Errorf("%w: %s %s is %d bytes, layout declares %d",
				ErrInvalidState, l.name, seg, len(raw), l.Size(seg))
		}
		v = l.newValue(seg, 0)
	}

	if err := l.codec.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: %s decode %s: %w", ErrInvalidState, l.name, seg, err)
	}
	return v, nil
}

// Describe summarises a packet for logs and error messages.
func Describe(p Packet) string {
	if p == nil {
		return "<nil packet>"
	}
	f := p.Segments()
	return fmt.Sprintf("%s{preamble=%dB payload=%dB postamble=%dB}",
		f.layout.name, len(f.raw[0]), len(f.raw[1]), len(f.raw[2]))
}
