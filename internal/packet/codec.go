package packet

import (
	"encoding/binary"
	"fmt"
)

// Codec converts fixed-size structured values to and from bytes.
type Codec interface {
	// Size returns the encoded size of v, or -1 when v has no fixed size.
	Size(v any) int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// BinaryCodec encodes values with encoding/binary rules: structs of
// fixed-size fields, arrays and slices of fixed-size elements.
type BinaryCodec struct {
	Order binary.ByteOrder
}

// LittleEndian is the codec used by the bundled protocols.
var LittleEndian = BinaryCodec{Order: binary.LittleEndian}

func (c BinaryCodec) order() binary.ByteOrder {
	if c.Order == nil {
		return binary.LittleEndian
	}
	return c.Order
}

func (c BinaryCodec) Size(v any) int {
	return binary.Size(v)
}

func (c BinaryCodec) Marshal(v any) ([]byte, error) {
	return binary.Append(nil, c.order(), v)
}

func (c BinaryCodec) Unmarshal(data []byte, v any) error {
	n, err := binary.Decode(data, c.order(), v)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("decoded %d of %d bytes", n, len(data))
	}
	return nil
}
