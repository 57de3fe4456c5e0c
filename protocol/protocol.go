// Package protocol implements the mushlink packet codec: hierarchical
// nibble-packed addressing and the chunking of payloads across 32-byte frames.
package protocol

import "errors"

// Version represents the mushlink wire format version
const Version = "0.1.0"

// Protocol constants
const (
	FrameSize       = 32    // Size of one transport frame
	LengthFieldSize = 2     // Size of the frame-count field after the prelude
	MaxFrames       = 65535 // Largest frame count the length field can hold

	// Nibble layout of routed addresses
	NibbleMask  = 0x0F
	NibbleShift = 4
	MaxNibbles  = FrameSize * 2
)

// Frame is a 32 byte window of data, the unit moved by the transport
type Frame [FrameSize]byte

var (
	ErrCapacityExceeded = errors.New("packet needs more than 65535 frames")
	ErrMalformedAddress = errors.New("malformed address")
	ErrTruncatedInput   = errors.New("fewer frames than declared")
	ErrLengthMismatch   = errors.New("declared frame count does not match payload size")
	ErrInvalidNodeID    = errors.New("invalid node id")
	ErrAddressTooLong   = errors.New("address does not fit in first frame")
	ErrAmbiguousAddress = errors.New("routed address collides with local sentinel")
)
