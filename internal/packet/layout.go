package packet

import (
	"fmt"
	"reflect"
)

// Layout declares the binary shape of a packet variant: the preamble record,
// the payload element and the postamble record. It is built once per variant
// and shared by every packet of that variant.
type Layout struct {
	name     string
	codec    Codec
	types    [3]reflect.Type
	sizes    [3]int
	elemSize int
}

// NewLayout builds a layout from zero values of the segment types. Pass nil
// for a segment the variant does not carry. It panics when a declared type
// has no fixed encoded size, since that is a programming error caught at
// package initialisation.
func NewLayout(name string, preamble, element, postamble any, codec Codec) *Layout {
	if codec == nil {
		codec = LittleEndian
	}
	l := &Layout{name: name, codec: codec}

	for i, v := range [...]any{preamble, element, postamble} {
		if v == nil {
			continue
		}
		t := reflect.TypeOf(v)
		size := codec.Size(reflect.New(t).Interface())
		if size <= 0 {
			panic(fmt.Sprintf("packet: layout %s: %s has no fixed size", name, t))
		}
		l.types[i] = t
		if i == Payload.index() {
			l.elemSize = size
		} else {
			l.sizes[i] = size
		}
	}
	return l
}

// Name identifies the variant in logs and errors.
func (l *Layout) Name() string { return l.name }

// Codec returns the codec used for every segment.
func (l *Layout) Codec() Codec { return l.codec }

// Declares reports whether the variant carries seg at all.
func (l *Layout) Declares(seg Segment) bool {
	return l.types[seg.index()] != nil
}

// Size returns the fixed size of the preamble or postamble record. Payload
// size is per packet; use Packet.PayloadSize.
func (l *Layout) Size(seg Segment) int {
	return l.sizes[seg.index()]
}

// ElementSize returns the encoded size of one payload element, or zero when
// the variant carries no payload.
func (l *Layout) ElementSize() int { return l.elemSize }

// newValue allocates an empty structured value for seg. Records come back
// as pointers; the payload comes back as a slice of n elements.
func (l *Layout) newValue(seg Segment, n int) any {
	t := l.types[seg.index()]
	if seg == Payload {
		return reflect.MakeSlice(reflect.SliceOf(t), n, n).Interface()
	}
	return reflect.New(t).Interface()
}
