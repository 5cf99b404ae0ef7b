package packet

// Frame stores both views of a packet's segments. Concrete packet variants
// embed a Frame, which also gives them the Segments method of the Packet
// contract.
type Frame struct {
	layout *Layout
	raw    [3][]byte
	values [3]any

	// rawSet and valueSet record which segments currently hold each form.
	rawSet   Segment
	valueSet Segment

	buf []byte
}

// NewFrame returns an empty frame for the given layout.
func NewFrame(layout *Layout) Frame {
	return Frame{layout: layout}
}

// Segments returns the frame itself.
func (f *Frame) Segments() *Frame { return f }

// Layout returns the variant layout.
func (f *Frame) Layout() *Layout { return f.layout }

// Raw returns the raw bytes of a single segment.
func (f *Frame) Raw(seg Segment) []byte {
	return f.raw[seg.index()]
}

// SetRaw stores raw bytes for a single segment. The structured value of that
// segment becomes stale and has to be reconstructed.
func (f *Frame) SetRaw(seg Segment, b []byte) {
	f.storeRaw(seg, b)
	f.valueSet &^= seg
}

// Value returns the structured value of a single segment: a pointer for the
// preamble and postamble records, a slice for the payload.
func (f *Frame) Value(seg Segment) any {
	return f.values[seg.index()]
}

// SetValue stores a structured value for a single segment. The raw bytes of
// that segment become stale and have to be deconstructed.
func (f *Frame) SetValue(seg Segment, v any) {
	f.storeValue(seg, v)
	f.rawSet &^= seg
	f.buf = nil
}

// Bytes returns the full raw buffer (preamble, payload, postamble), or nil
// until every segment has been deconstructed.
func (f *Frame) Bytes() []byte {
	return f.buf
}

// Len returns the unescaped wire length of the deconstructed packet.
func (f *Frame) Len() int {
	return len(f.raw[0]) + len(f.raw[1]) + len(f.raw[2])
}

// Deconstructed reports whether all segments hold raw bytes.
func (f *Frame) Deconstructed() bool { return f.rawSet == All }

// Constructed reports whether all segments hold structured values.
func (f *Frame) Constructed() bool { return f.valueSet == All }

func (f *Frame) storeRaw(seg Segment, b []byte) {
	f.raw[seg.index()] = b
	f.rawSet |= seg
	if f.rawSet == All {
		f.buf = make([]byte, 0, f.Len())
		for _, s := range WireOrder {
			f.buf = append(f.buf, f.raw[s.index()]...)
		}
	} else {
		f.buf = nil
	}
}

func (f *Frame) storeValue(seg Segment, v any) {
	f.values[seg.index()] = v
	f.valueSet |= seg
}
