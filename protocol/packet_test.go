package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeSingleFrame(t *testing.T) {
	testCases := []struct {
		name     string
		dest     Destination
		value    Uint16
		expected []byte
	}{
		{
			name:     "to parent",
			dest:     Local(ToParent),
			value:    0x3F21,
			expected: []byte{0xA0, 0x00, 0x01, 0x3F, 0x21},
		},
		{
			name:     "to child",
			dest:     Local(ToChild),
			value:    0x3214,
			expected: []byte{0x90, 0x00, 0x01, 0x32, 0x14},
		},
		{
			name:     "routed",
			dest:     Routed(Path{1, 2, 3}, Path{3, 2, 1}),
			value:    0x1923,
			expected: []byte{0x12, 0x30, 0x32, 0x10, 0x00, 0x01, 0x19, 0x23},
		},
	}

	for _, tc := range testCases {
		frames, err := EncodePacket(tc.dest, tc.value)
		if err != nil {
			t.Errorf("%s: EncodePacket failed: %v", tc.name, err)
			continue
		}
		if len(frames) != 1 {
			t.Errorf("%s: expected 1 frame, got %d", tc.name, len(frames))
			continue
		}

		var expected Frame
		copy(expected[:], tc.expected)
		if frames[0] != expected {
			t.Errorf("%s: expected %X, got %X", tc.name, expected, frames[0])
		}
	}
}

func TestEncodeBlock(t *testing.T) {
	var block Uint32Block
	for i := range block {
		block[i] = uint32(i)
	}

	testCases := []struct {
		name    string
		dest    Destination
		prelude []byte
	}{
		{"to parent", Local(ToParent), []byte{0xA0}},
		{"to child", Local(ToChild), []byte{0x90}},
		{"routed", Routed(Path{1, 2, 3}, Path{3, 2, 1}), []byte{0x12, 0x30, 0x32, 0x10}},
	}

	for _, tc := range testCases {
		frames, err := EncodePacket(tc.dest, block)
		if err != nil {
			t.Errorf("%s: EncodePacket failed: %v", tc.name, err)
			continue
		}

		expected := make([]Frame, 5)
		copy(expected[0][:], tc.prelude)
		expected[0][len(tc.prelude)] = 0x00
		expected[0][len(tc.prelude)+1] = 0x05
		start := len(tc.prelude) + LengthFieldSize
		for i := range block {
			x := start + 4*i + 3
			expected[x/FrameSize][x%FrameSize] = byte(i)
		}

		if len(frames) != len(expected) {
			t.Errorf("%s: expected %d frames, got %d", tc.name, len(expected), len(frames))
			continue
		}
		for i := range frames {
			if frames[i] != expected[i] {
				t.Errorf("%s: frame %d mismatch:\nexpected %X\ngot      %X", tc.name, i, expected[i], frames[i])
			}
		}
	}
}

func TestMultiFrameBoundary(t *testing.T) {
	dest := Routed(Path{1, 2}, Path{3})
	preludeLen := dest.PreludeLength()
	if preludeLen != 3 {
		t.Fatalf("Expected prelude length 3, got %d", preludeLen)
	}

	// 1 frame up to 27 payload bytes, then one more frame per 32 bytes
	testCases := []struct {
		size   int
		frames int
	}{
		{0, 1},
		{27, 1},
		{28, 2},
		{59, 2},
		{60, 3},
		{100, 4},
	}

	for _, tc := range testCases {
		payload := make([]byte, tc.size)
		for i := range payload {
			payload[i] = byte(i*7 + 1)
		}

		frames, err := Encode(dest, payload)
		if err != nil {
			t.Errorf("size %d: Encode failed: %v", tc.size, err)
			continue
		}
		if len(frames) != tc.frames {
			t.Errorf("size %d: expected %d frames, got %d", tc.size, tc.frames, len(frames))
			continue
		}

		// Occupied ranges concatenated reproduce the payload
		var joined []byte
		for i, f := range frames {
			if i == 0 {
				joined = append(joined, f[preludeLen+LengthFieldSize:]...)
			} else {
				joined = append(joined, f[:]...)
			}
		}
		if !bytes.Equal(joined[:tc.size], payload) {
			t.Errorf("size %d: payload bytes not reproduced", tc.size)
		}
		for i, b := range joined[tc.size:] {
			if b != 0 {
				t.Errorf("size %d: padding byte %d is 0x%02X, expected 0", tc.size, i, b)
				break
			}
		}

		d, got, err := Decode(frames, tc.size)
		if err != nil {
			t.Errorf("size %d: Decode failed: %v", tc.size, err)
			continue
		}
		if !d.Equal(dest) {
			t.Errorf("size %d: expected destination %s, got %s", tc.size, dest, d)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("size %d: decoded payload mismatch", tc.size)
		}
	}
}

func TestCapacityBoundary(t *testing.T) {
	// Prelude 1 + length 2 + payload fills exactly MaxFrames frames
	size := MaxFrames*FrameSize - 3

	count, err := FrameCount(1, size)
	if err != nil {
		t.Fatalf("FrameCount at limit failed: %v", err)
	}
	if count != MaxFrames {
		t.Errorf("Expected %d frames, got %d", MaxFrames, count)
	}

	frames, err := Encode(Local(ToParent), make([]byte, size))
	if err != nil {
		t.Fatalf("Encode at limit failed: %v", err)
	}
	if len(frames) != MaxFrames {
		t.Errorf("Expected %d frames, got %d", MaxFrames, len(frames))
	}
	if frames[0][1] != 0xFF || frames[0][2] != 0xFF {
		t.Errorf("Expected length field FFFF, got %02X%02X", frames[0][1], frames[0][2])
	}

	if _, err := FrameCount(1, size+1); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
	frames, err = Encode(Local(ToParent), make([]byte, size+1))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
	if frames != nil {
		t.Errorf("Expected no frames on failure, got %d", len(frames))
	}
}

func TestEncodePreludeTooLong(t *testing.T) {
	// 30 + 1 + 30 + 1 nibbles = 31 bytes, no room for the length field
	long := make(Path, 30)
	for i := range long {
		long[i] = NodeID(i%15 + 1)
	}

	if _, _, err := EncodeAddress(Routed(long, long)); err != nil {
		t.Fatalf("EncodeAddress failed: %v", err)
	}
	if _, err := Encode(Routed(long, long), []byte{1}); !errors.Is(err, ErrAddressTooLong) {
		t.Errorf("Expected ErrAddressTooLong, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	frames, err := Encode(Local(ToChild), make([]byte, 100))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, _, err := Decode(frames[:len(frames)-1], 100); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("Expected ErrTruncatedInput, got %v", err)
	}
	if _, _, err := Decode(nil, 100); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("Expected ErrTruncatedInput for no frames, got %v", err)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	frames, err := Encode(Local(ToChild), make([]byte, 100))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, _, err := Decode(frames, 200); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
}

func TestNegativeSize(t *testing.T) {
	frames, err := Encode(Local(ToChild), []byte{1, 2})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, _, err := Decode(frames, -1); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Decode: expected ErrLengthMismatch, got %v", err)
	}
	if _, err := FrameCount(1, -40); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("FrameCount: expected ErrLengthMismatch, got %v", err)
	}
}

func TestDecodeIgnoresExtraFrames(t *testing.T) {
	frames, err := EncodePacket(Local(ToParent), Uint32(0xDEADBEEF))
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}

	var junk Frame
	junk[0] = 0xFF
	frames = append(frames, junk)

	d, value, err := DecodePacket[Uint32](frames)
	if err != nil {
		t.Fatalf("DecodePacket failed: %v", err)
	}
	if !d.Equal(Local(ToParent)) {
		t.Errorf("Expected to parent, got %s", d)
	}
	if value != 0xDEADBEEF {
		t.Errorf("Expected 0xDEADBEEF, got 0x%X", uint32(value))
	}
}

func TestPeekLength(t *testing.T) {
	frames, err := Encode(Routed(Path{1, 2, 3}, Path{4}), make([]byte, 70))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	preludeLen, count, err := PeekLength(&frames[0])
	if err != nil {
		t.Fatalf("PeekLength failed: %v", err)
	}
	if preludeLen != 3 {
		t.Errorf("Expected prelude length 3, got %d", preludeLen)
	}
	if count != len(frames) || count != 3 {
		t.Errorf("Expected 3 frames, got %d (encoded %d)", count, len(frames))
	}
}

func TestPacketRoundTrip(t *testing.T) {
	var block Uint32Block
	for i := range block {
		block[i] = uint32(i) * 0x01010101
	}

	destinations := []Destination{
		Local(ToParent),
		Local(ToChild),
		Routed(Path{1, 2}, Path{3, 4}),
		Routed(Path{1, 2}, Path{3, 4, 5}),
		Routed(Path{1, 2, 3}, Path{4, 5}),
		Routed(Path{1, 2, 3}, Path{4, 5, 6}),
	}

	for _, dest := range destinations {
		frames, err := EncodePacket(dest, block)
		if err != nil {
			t.Errorf("%s: EncodePacket failed: %v", dest, err)
			continue
		}

		d, got, err := DecodePacket[Uint32Block](frames)
		if err != nil {
			t.Errorf("%s: DecodePacket failed: %v", dest, err)
			continue
		}
		if !d.Equal(dest) {
			t.Errorf("Expected %s, got %s", dest, d)
		}
		if got != block {
			t.Errorf("%s: block mismatch", dest)
		}

		again, err := EncodePacket(d, got)
		if err != nil {
			t.Errorf("%s: re-encode failed: %v", dest, err)
			continue
		}
		if len(again) != len(frames) {
			t.Errorf("%s: re-encode produced %d frames, expected %d", dest, len(again), len(frames))
			continue
		}
		for i := range frames {
			if again[i] != frames[i] {
				t.Errorf("%s: re-encode frame %d differs", dest, i)
			}
		}
	}
}

func TestStockPayloads(t *testing.T) {
	dest := Routed(Path{4}, Path{2, 1})

	frames, err := EncodePacket(dest, Int32(-123456))
	if err != nil {
		t.Fatalf("EncodePacket Int32 failed: %v", err)
	}
	if _, v, err := DecodePacket[Int32](frames); err != nil || v != -123456 {
		t.Errorf("Int32 round trip: got %d (%v)", v, err)
	}

	frames, err = EncodePacket(dest, Float32(3.25))
	if err != nil {
		t.Fatalf("EncodePacket Float32 failed: %v", err)
	}
	if _, v, err := DecodePacket[Float32](frames); err != nil || v != 3.25 {
		t.Errorf("Float32 round trip: got %v (%v)", v, err)
	}

	raw := Raw{0xCA, 0xFE}
	frames, err = EncodePacket(dest, raw)
	if err != nil {
		t.Fatalf("EncodePacket Raw failed: %v", err)
	}
	if _, got, err := Decode(frames, len(raw)); err != nil || !bytes.Equal(got, raw) {
		t.Errorf("Raw round trip: got %X (%v)", got, err)
	}

	var short Uint16
	if err := short.Unpack([]byte{1}); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("Expected ErrTruncatedInput for short window, got %v", err)
	}
}
