package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mushlink/protocol"
)

func encodeTestPacket(t *testing.T, size int) []protocol.Frame {
	t.Helper()
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	frames, err := protocol.Encode(protocol.Routed(protocol.Path{1, 2}, protocol.Path{3}), payload)
	require.NoError(t, err)
	return frames
}

func TestAssemblerSingleFrame(t *testing.T) {
	frames := encodeTestPacket(t, 4)
	require.Len(t, frames, 1)

	a := NewAssembler()
	packet, err := a.Push(MarkFirst(SequenceBase), frames[0])
	require.NoError(t, err)
	assert.Equal(t, frames, packet)
	assert.Zero(t, a.Pending())
}

func TestAssemblerMultiFrame(t *testing.T) {
	frames := encodeTestPacket(t, 100)
	require.Len(t, frames, 4)

	a := NewAssembler()
	seq := byte(0x1E)
	var packet []protocol.Frame
	for i, f := range frames {
		s := seq
		if i == 0 {
			s = MarkFirst(seq)
		}
		var err error
		packet, err = a.Push(s, f)
		require.NoError(t, err)
		if i < len(frames)-1 {
			assert.Nil(t, packet)
			assert.Equal(t, i+1, a.Pending())
		}
		seq = NextSequence(seq)
	}
	assert.Equal(t, frames, packet)
}

func TestAssemblerSequenceGap(t *testing.T) {
	frames := encodeTestPacket(t, 100)
	next := encodeTestPacket(t, 4)

	a := NewAssembler()
	var dropped int
	var reason error
	a.SetDropHandler(func(err error, n int) {
		dropped = n
		reason = err
	})

	_, err := a.Push(0x20, frames[0])
	require.NoError(t, err)
	_, err = a.Push(0x11, frames[1])
	require.NoError(t, err)

	// 0x12 lost; the single-frame packet at 0x13 still gets through
	packet, err := a.Push(0x23, next[0])
	require.NoError(t, err)
	assert.Equal(t, next, packet)
	assert.Equal(t, 2, dropped)
	assert.ErrorIs(t, reason, ErrSequenceGap)
}

func TestAssemblerMalformedFirstFrame(t *testing.T) {
	var junk protocol.Frame
	for i := range junk {
		junk[i] = 0x11
	}

	a := NewAssembler()
	packet, err := a.Push(MarkFirst(SequenceBase), junk)
	assert.Nil(t, packet)
	assert.ErrorIs(t, err, protocol.ErrMalformedAddress)
	assert.Zero(t, a.Pending())

	var zeroCount protocol.Frame
	zeroCount[0] = byte(protocol.ToParent)
	_, err = a.Push(MarkFirst(NextSequence(SequenceBase)), zeroCount)
	assert.ErrorIs(t, err, protocol.ErrLengthMismatch)
}

func TestAssemblerSkipsToNextFirstFrame(t *testing.T) {
	// Three-frame packet whose last frame would parse as a to-parent header
	// declaring 65535 frames
	payload := make([]byte, 64)
	copy(payload[61:], []byte{0xA0, 0xFF, 0xFF})
	lost, err := protocol.Encode(protocol.Local(protocol.ToChild), payload)
	require.NoError(t, err)
	require.Len(t, lost, 3)
	require.Equal(t, byte(protocol.ToParent), lost[2][0])

	single, err := protocol.EncodePacket(protocol.Local(protocol.ToChild), protocol.Uint16(0x0A0B))
	require.NoError(t, err)

	a := NewAssembler()
	var dropped int
	a.SetDropHandler(func(err error, n int) {
		dropped += n
	})

	_, err = a.Push(0x20, lost[0])
	require.NoError(t, err)

	// 0x11 carrying lost[1] never arrives
	packet, err := a.Push(0x12, lost[2])
	assert.Nil(t, packet)
	assert.ErrorIs(t, err, ErrNotFirst)
	assert.Equal(t, 1, dropped)
	assert.Zero(t, a.Pending())

	seq := NextSequence(0x12)
	delivered := 0
	for i := 0; i < 20; i++ {
		packet, err := a.Push(MarkFirst(seq), single[0])
		require.NoError(t, err)
		if assert.Len(t, packet, 1) {
			delivered++
		}
		seq = NextSequence(seq)
	}
	assert.Equal(t, 20, delivered)
	assert.Zero(t, a.Pending())
}

func TestAssemblerInterruptedPacket(t *testing.T) {
	frames := encodeTestPacket(t, 100)
	next := encodeTestPacket(t, 4)

	a := NewAssembler()
	var reason error
	a.SetDropHandler(func(err error, n int) {
		reason = err
	})

	_, err := a.Push(0x20, frames[0])
	require.NoError(t, err)

	// The sender restarted without losing a block
	packet, err := a.Push(0x21, next[0])
	require.NoError(t, err)
	assert.Equal(t, next, packet)
	assert.ErrorIs(t, reason, ErrInterrupted)
}

func TestAssemblerReset(t *testing.T) {
	frames := encodeTestPacket(t, 100)

	a := NewAssembler()
	_, err := a.Push(0x20, frames[0])
	require.NoError(t, err)
	require.Equal(t, 1, a.Pending())

	a.Reset()
	assert.Zero(t, a.Pending())

	// Any sequence is accepted after a reset
	packet, err := a.Push(0x27, encodeTestPacket(t, 1)[0])
	require.NoError(t, err)
	assert.Len(t, packet, 1)
}
