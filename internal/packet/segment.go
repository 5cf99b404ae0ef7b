package packet

import "strings"

// Segment is a bit set over the three ordered segments of a packet. A single
// bit names one segment; combinations select several at once.
type Segment uint8

const (
	Preamble Segment = 1 << iota
	Payload
	Postamble

	None Segment = 0
	All          = Preamble | Payload | Postamble
)

// WireOrder lists the segments in the order they appear on the wire.
var WireOrder = [...]Segment{Preamble, Payload, Postamble}

// Has reports whether every segment in seg is part of s.
func (s Segment) Has(seg Segment) bool {
	return s&seg == seg
}

func (s Segment) index() int {
	switch s {
	case Preamble:
		return 0
	case Payload:
		return 1
	case Postamble:
		return 2
	default:
		panic("packet: index of a segment combination")
	}
}

func (s Segment) String() string {
	switch s {
	case None:
		return "none"
	case All:
		return "all"
	}

	var names []string
	if s.Has(Preamble) {
		names = append(names, "preamble")
	}
	if s.Has(Payload) {
		names = append(names, "payload")
	}
	if s.Has(Postamble) {
		names = append(names, "postamble")
	}
	return strings.Join(names, "|")
}
