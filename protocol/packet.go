package protocol

import (
	"encoding/binary"
	"fmt"
)

// FrameCount returns the number of frames a packet with the given prelude
// length and payload size occupies
func FrameCount(preludeLen, size int) (int, error) {
	if preludeLen < 0 || size < 0 {
		return 0, fmt.Errorf("%w: negative size (prelude %d, payload %d)", ErrLengthMismatch, preludeLen, size)
	}
	total := preludeLen + LengthFieldSize + size
	frames := (total + FrameSize - 1) / FrameSize
	if frames > MaxFrames {
		return 0, fmt.Errorf("%w: %d bytes need %d frames", ErrCapacityExceeded, total, frames)
	}
	return frames, nil
}

// Encode lays the destination prelude, the frame-count field and the payload
// across a sequence of frames. The frame count is written big-endian directly
// after the prelude. The last frame is zero padded.
func Encode(d Destination, payload []byte) ([]Frame, error) {
	first, preludeLen, err := EncodeAddress(d)
	if err != nil {
		return nil, err
	}
	if preludeLen+LengthFieldSize > FrameSize {
		return nil, fmt.Errorf("%w: prelude is %d bytes", ErrAddressTooLong, preludeLen)
	}

	count, err := FrameCount(preludeLen, len(payload))
	if err != nil {
		return nil, err
	}

	binary.BigEndian.PutUint16(first[preludeLen:], uint16(count))
	n := copy(first[preludeLen+LengthFieldSize:], payload)
	payload = payload[n:]

	frames := make([]Frame, count)
	frames[0] = first
	for i := 1; i < count; i++ {
		n = copy(frames[i][:], payload)
		payload = payload[n:]
	}

	return frames, nil
}

// PeekLength reads the prelude length and the declared frame count from the
// first frame of a packet
func PeekLength(first *Frame) (preludeLen, frames int, err error) {
	_, preludeLen, err = DecodeAddress(first)
	if err != nil {
		return 0, 0, err
	}
	if preludeLen+LengthFieldSize > FrameSize {
		return 0, 0, fmt.Errorf("%w: no room for length field after %d byte prelude", ErrMalformedAddress, preludeLen)
	}
	frames = int(binary.BigEndian.Uint16(first[preludeLen:]))
	return preludeLen, frames, nil
}

// Decode recovers the destination and the size bytes of payload from a frame
// sequence. Frames past the declared count and padding past size are ignored.
// The returned payload does not alias the frames.
func Decode(frames []Frame, size int) (Destination, []byte, error) {
	if size < 0 {
		return Destination{}, nil, fmt.Errorf("%w: negative payload size %d", ErrLengthMismatch, size)
	}
	if len(frames) == 0 {
		return Destination{}, nil, fmt.Errorf("%w: no frames", ErrTruncatedInput)
	}

	d, preludeLen, err := DecodeAddress(&frames[0])
	if err != nil {
		return Destination{}, nil, err
	}
	if preludeLen+LengthFieldSize > FrameSize {
		return Destination{}, nil, fmt.Errorf("%w: no room for length field after %d byte prelude", ErrMalformedAddress, preludeLen)
	}

	declared := int(binary.BigEndian.Uint16(frames[0][preludeLen:]))
	if len(frames) < declared {
		return Destination{}, nil, fmt.Errorf("%w: have %d, declared %d", ErrTruncatedInput, len(frames), declared)
	}

	want, err := FrameCount(preludeLen, size)
	if err != nil {
		return Destination{}, nil, err
	}
	if declared != want {
		return Destination{}, nil, fmt.Errorf("%w: declared %d, %d byte payload needs %d", ErrLengthMismatch, declared, size, want)
	}

	payload := make([]byte, size)
	n := copy(payload, frames[0][preludeLen+LengthFieldSize:])
	for i := 1; n < size; i++ {
		n += copy(payload[n:], frames[i][:])
	}

	return d, payload, nil
}
