package link

import (
	"errors"
	"fmt"

	"mushlink/protocol"
)

var (
	ErrSequenceGap = errors.New("link: sequence gap")
	ErrInterrupted = errors.New("link: packet interrupted by a new first frame")
	ErrNotFirst    = errors.New("link: continuation frame without a packet start")
)

// DropHandler is called with the reason and frame count whenever the
// assembler discards a partial packet
type DropHandler func(reason error, frames int)

// Assembler groups received frames into complete packets. The first frame of
// each packet carries a marked sequence byte and declares how many frames
// follow. A sequence gap discards the packet in progress since packets are
// never delivered partially; continuation frames are then skipped until the
// next marked first frame.
type Assembler struct {
	frames  []protocol.Frame
	want    int
	lastSeq byte
	haveSeq bool
	onDrop  DropHandler
}

// NewAssembler creates an empty Assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// SetDropHandler sets a callback for discarded partial packets
func (a *Assembler) SetDropHandler(handler DropHandler) {
	a.onDrop = handler
}

// Push adds a frame received with sequence byte seq. It returns the frames of
// a packet once the last one arrives, nil while more are expected. A first
// frame that carries no valid address or length is discarded and reported as
// an error, as is a continuation frame that belongs to no packet.
func (a *Assembler) Push(seq byte, f protocol.Frame) ([]protocol.Frame, error) {
	expected := NextSequence(a.lastSeq)
	gap := a.haveSeq && seq&SequenceMask != expected&SequenceMask
	a.lastSeq = seq
	a.haveSeq = true

	first := IsFirst(seq)
	if len(a.frames) > 0 {
		switch {
		case gap:
			a.drop(fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrSequenceGap, expected&SequenceMask, seq&SequenceMask))
		case first:
			a.drop(ErrInterrupted)
		}
	}

	if len(a.frames) == 0 {
		if !first {
			return nil, fmt.Errorf("%w: seq 0x%02X", ErrNotFirst, seq)
		}
		_, count, err := protocol.PeekLength(&f)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: first frame declares 0 frames", protocol.ErrLengthMismatch)
		}
		a.want = count
		a.frames = make([]protocol.Frame, 0, min(count, 64))
	}

	a.frames = append(a.frames, f)
	if len(a.frames) < a.want {
		return nil, nil
	}

	packet := a.frames
	a.frames = nil
	a.want = 0
	return packet, nil
}

// Pending returns the number of frames held for the packet in progress
func (a *Assembler) Pending() int {
	return len(a.frames)
}

// Reset discards any packet in progress and forgets the last sequence
func (a *Assembler) Reset() {
	a.frames = nil
	a.want = 0
	a.haveSeq = false
}

func (a *Assembler) drop(reason error) {
	n := len(a.frames)
	a.frames = nil
	a.want = 0
	if a.onDrop != nil {
		a.onDrop(reason, n)
	}
}
