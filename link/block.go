// Package link carries mushlink frames over a serial byte stream.
//
// Each 32-byte frame travels in its own block, framed the way Klipper frames
// its message blocks:
//
//	[len][seq][32 frame bytes][crc hi][crc lo][0x7E]
//
// The CRC covers len, seq and the frame. The low nibble of seq counts blocks
// modulo 16 so a receiver can detect lost frames. The high nibble is 0x20 on
// the first frame of a packet and 0x10 on the frames that follow it, which
// lets a receiver find the next packet start after a loss.
package link

import (
	"errors"
	"fmt"

	"mushlink/protocol"
)

const (
	BlockHeaderSize  = 2
	BlockTrailerSize = 3
	BlockLength      = BlockHeaderSize + protocol.FrameSize + BlockTrailerSize
	BlockPositionLen = 0
	BlockPositionSeq = 1
	BlockTrailerCRC  = 3
	BlockTrailerSync = 1
	BlockValueSync   = 0x7E

	SequenceBase  = 0x10
	SequenceFirst = 0x20
	SequenceMask  = 0x0F
)

var (
	ErrShortBlock    = errors.New("link: short block")
	ErrBlockLength   = errors.New("link: bad block length")
	ErrBlockSequence = errors.New("link: bad sequence byte")
	ErrBlockSync     = errors.New("link: missing sync byte")
	ErrBlockCRC      = errors.New("link: crc mismatch")
)

// NextSequence returns the continuation sequence byte following seq
func NextSequence(seq byte) byte {
	return ((seq + 1) & SequenceMask) | SequenceBase
}

// MarkFirst returns seq marked as the first frame of a packet
func MarkFirst(seq byte) byte {
	return seq&SequenceMask | SequenceFirst
}

// IsFirst reports whether seq marks the first frame of a packet
func IsFirst(seq byte) bool {
	return seq&^SequenceMask == SequenceFirst
}

// AppendBlock appends the block carrying f with sequence seq to dst
func AppendBlock(dst []byte, seq byte, f *protocol.Frame) []byte {
	start := len(dst)
	dst = append(dst, BlockLength, seq)
	dst = append(dst, f[:]...)
	dst = appendCRC16(dst, dst[start:])
	return append(dst, BlockValueSync)
}

// AppendPacket appends one block per frame to dst, marking the first. It
// returns the extended buffer and the sequence byte for the next packet.
func AppendPacket(dst []byte, seq byte, frames []protocol.Frame) ([]byte, byte) {
	for i := range frames {
		s := seq
		if i == 0 {
			s = MarkFirst(seq)
		}
		dst = AppendBlock(dst, s, &frames[i])
		seq = NextSequence(seq)
	}
	return dst, seq
}

// DecodeBlock parses one block from the start of data
func DecodeBlock(data []byte) (byte, protocol.Frame, error) {
	var frame protocol.Frame

	if len(data) < BlockLength {
		return 0, frame, ErrShortBlock
	}
	if data[BlockPositionLen] != BlockLength {
		return 0, frame, fmt.Errorf("%w: %d", ErrBlockLength, data[BlockPositionLen])
	}
	seq := data[BlockPositionSeq]
	if kind := seq &^ SequenceMask; kind != SequenceBase && kind != SequenceFirst {
		return 0, frame, fmt.Errorf("%w: 0x%02X", ErrBlockSequence, seq)
	}
	if data[BlockLength-BlockTrailerSync] != BlockValueSync {
		return 0, frame, ErrBlockSync
	}

	blockCRC := uint16(data[BlockLength-BlockTrailerCRC])<<8 |
		uint16(data[BlockLength-BlockTrailerCRC+1])
	actualCRC := CRC16(data[:BlockLength-BlockTrailerSize])
	if blockCRC != actualCRC {
		return 0, frame, fmt.Errorf("%w: got %04X, want %04X", ErrBlockCRC, blockCRC, actualCRC)
	}

	copy(frame[:], data[BlockHeaderSize:BlockLength-BlockTrailerSize])
	return seq, frame, nil
}
