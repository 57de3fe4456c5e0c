package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload is implemented by data carried in packets. A payload always
// serializes to the same number of bytes; both ends know that size out of band.
//
// Big endian is used by the stock payloads, but any fixed layout works.
type Payload interface {
	// PackedSize returns the number of bytes Pack writes
	PackedSize() int

	// Pack writes exactly PackedSize bytes into dst
	Pack(dst []byte)
}

// Unpacker is implemented by payloads that can be rebuilt from their packed bytes
type Unpacker interface {
	// Unpack reads the value from a window of exactly PackedSize bytes
	Unpack(window []byte) error
}

// PayloadPtr constrains a pointer to T that can both pack and unpack
type PayloadPtr[T any] interface {
	*T
	Payload
	Unpacker
}

// EncodePacket serializes p and lays it across frames addressed to d
func EncodePacket(d Destination, p Payload) ([]Frame, error) {
	buf := make([]byte, p.PackedSize())
	p.Pack(buf)
	return Encode(d, buf)
}

// DecodePacket rebuilds a payload of type T from frames. The payload size is
// taken from the zero value of T.
func DecodePacket[T any, PT PayloadPtr[T]](frames []Frame) (Destination, T, error) {
	var value T
	ptr := PT(&value)

	d, window, err := Decode(frames, ptr.PackedSize())
	if err != nil {
		return Destination{}, value, err
	}
	if err := ptr.Unpack(window); err != nil {
		return Destination{}, value, fmt.Errorf("unpack payload: %w", err)
	}
	return d, value, nil
}

// errShortWindow is returned by the stock payloads when handed too few bytes
func errShortWindow(want, got int) error {
	return fmt.Errorf("%w: payload needs %d bytes, window has %d", ErrTruncatedInput, want, got)
}

// Uint16 is a 2 byte big-endian payload
type Uint16 uint16

func (v Uint16) PackedSize() int { return 2 }

func (v Uint16) Pack(dst []byte) { binary.BigEndian.PutUint16(dst, uint16(v)) }

func (v *Uint16) Unpack(window []byte) error {
	if len(window) < 2 {
		return errShortWindow(2, len(window))
	}
	*v = Uint16(binary.BigEndian.Uint16(window))
	return nil
}

// Uint32 is a 4 byte big-endian payload
type Uint32 uint32

func (v Uint32) PackedSize() int { return 4 }

func (v Uint32) Pack(dst []byte) { binary.BigEndian.PutUint32(dst, uint32(v)) }

func (v *Uint32) Unpack(window []byte) error {
	if len(window) < 4 {
		return errShortWindow(4, len(window))
	}
	*v = Uint32(binary.BigEndian.Uint32(window))
	return nil
}

// Int32 is a 4 byte big-endian two's complement payload
type Int32 int32

func (v Int32) PackedSize() int { return 4 }

func (v Int32) Pack(dst []byte) { binary.BigEndian.PutUint32(dst, uint32(v)) }

func (v *Int32) Unpack(window []byte) error {
	if len(window) < 4 {
		return errShortWindow(4, len(window))
	}
	*v = Int32(binary.BigEndian.Uint32(window))
	return nil
}

// Float32 is a 4 byte IEEE 754 payload, big-endian
type Float32 float32

func (v Float32) PackedSize() int { return 4 }

func (v Float32) Pack(dst []byte) {
	binary.BigEndian.PutUint32(dst, math.Float32bits(float32(v)))
}

func (v *Float32) Unpack(window []byte) error {
	if len(window) < 4 {
		return errShortWindow(4, len(window))
	}
	*v = Float32(math.Float32frombits(binary.BigEndian.Uint32(window)))
	return nil
}

// Uint32Block is a block of 32 big-endian words (128 bytes), large enough to
// span several frames
type Uint32Block [32]uint32

func (b Uint32Block) PackedSize() int { return len(b) * 4 }

func (b Uint32Block) Pack(dst []byte) {
	for i, w := range b {
		binary.BigEndian.PutUint32(dst[i*4:], w)
	}
}

func (b *Uint32Block) Unpack(window []byte) error {
	if len(window) < b.PackedSize() {
		return errShortWindow(b.PackedSize(), len(window))
	}
	for i := range b {
		b[i] = binary.BigEndian.Uint32(window[i*4:])
	}
	return nil
}

// Raw is an opaque byte payload whose size is its length. It cannot be used
// with DecodePacket since its zero value has no size; use Decode instead.
type Raw []byte

func (r Raw) PackedSize() int { return len(r) }

func (r Raw) Pack(dst []byte) { copy(dst, r) }
