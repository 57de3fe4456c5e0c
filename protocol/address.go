package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is one hop of a hierarchical address. Zero is reserved as the
// field terminator on the wire.
type NodeID uint8

const (
	MinNodeID NodeID = 1
	MaxNodeID NodeID = 15
)

// Path is a chain of hops from the root toward a leaf, most significant first
type Path []NodeID

// ParsePath parses a dotted path such as "1.2.3". The empty string is the empty path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNodeID, part)
		}
		path = append(path, NodeID(v))
	}
	if err := path.Validate(); err != nil {
		return nil, err
	}
	return path, nil
}

// Validate checks that every hop is within 1..15
func (p Path) Validate() error {
	for i, id := range p {
		if id < MinNodeID || id > MaxNodeID {
			return fmt.Errorf("%w: hop %d is %d", ErrInvalidNodeID, i, id)
		}
	}
	return nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, id := range p {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, ".")
}

// Equal reports whether both paths hold the same hops
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Direction selects a local destination. The values are the wire sentinels.
type Direction byte

const (
	ToParent Direction = 0xA0
	ToChild  Direction = 0x90
)

func (d Direction) String() string {
	switch d {
	case ToParent:
		return "parent"
	case ToChild:
		return "child"
	default:
		return fmt.Sprintf("direction(0x%02X)", byte(d))
	}
}

// Destination is either a local direction or a routed from/to pair.
// The zero value is a routed destination with empty paths.
type Destination struct {
	local bool
	dir   Direction
	from  Path
	to    Path
}

// Local returns a destination addressed by direction only
func Local(dir Direction) Destination {
	return Destination{local: true, dir: dir}
}

// Routed returns a destination addressed by source and destination paths.
// The paths are copied.
func Routed(from, to Path) Destination {
	return Destination{
		from: append(Path{}, from...),
		to:   append(Path{}, to...),
	}
}

func (d Destination) IsLocal() bool {
	return d.local
}

// Direction returns the local direction, or zero for routed destinations
func (d Destination) Direction() Direction {
	return d.dir
}

func (d Destination) From() Path {
	return d.from
}

func (d Destination) To() Path {
	return d.to
}

// Equal compares two destinations; a nil path equals an empty one
func (d Destination) Equal(other Destination) bool {
	if d.local != other.local || d.dir != other.dir {
		return false
	}
	return d.from.Equal(other.from) && d.to.Equal(other.to)
}

func (d Destination) String() string {
	if d.IsLocal() {
		return "local:" + d.dir.String()
	}
	return fmt.Sprintf("%s->%s", d.from, d.to)
}

// PreludeLength returns the number of bytes the encoded address occupies
func (d Destination) PreludeLength() int {
	if d.IsLocal() {
		return 1
	}
	// from, terminator, to, terminator
	nibbles := len(d.from) + 1 + len(d.to) + 1
	return (nibbles + 1) / 2
}

// EncodeAddress writes the destination prelude at the start of a fresh frame.
// Returns the frame and the prelude length in bytes.
//
// Routed addresses are packed as the nibble stream from..., 0, to..., 0 with
// the high nibble first. When the stream has an odd nibble count the low
// nibble of the last byte is left zero.
func EncodeAddress(d Destination) (Frame, int, error) {
	var frame Frame

	if d.IsLocal() {
		if d.dir != ToParent && d.dir != ToChild {
			return frame, 0, fmt.Errorf("%w: unknown %s", ErrInvalidNodeID, d.dir)
		}
		frame[0] = byte(d.dir)
		return frame, 1, nil
	}

	if err := d.from.Validate(); err != nil {
		return frame, 0, fmt.Errorf("from: %w", err)
	}
	if err := d.to.Validate(); err != nil {
		return frame, 0, fmt.Errorf("to: %w", err)
	}

	length := d.PreludeLength()
	if length > FrameSize {
		return frame, 0, fmt.Errorf("%w: prelude needs %d bytes", ErrAddressTooLong, length)
	}

	pos := 0
	for _, id := range d.from {
		putNibble(&frame, pos, byte(id))
		pos++
	}
	pos++ // from terminator
	for _, id := range d.to {
		putNibble(&frame, pos, byte(id))
		pos++
	}

	if frame[0] == byte(ToParent) || frame[0] == byte(ToChild) {
		return Frame{}, 0, fmt.Errorf("%w: %s", ErrAmbiguousAddress, d)
	}

	return frame, length, nil
}

// DecodeAddress reads the destination prelude from the first frame of a packet.
// Returns the destination and the prelude length in bytes.
func DecodeAddress(f *Frame) (Destination, int, error) {
	switch Direction(f[0]) {
	case ToParent, ToChild:
		return Local(Direction(f[0])), 1, nil
	}

	fromLen := scanTerminator(f, 0)
	if fromLen < 0 {
		return Destination{}, 0, fmt.Errorf("%w: no terminator for from", ErrMalformedAddress)
	}
	toStart := fromLen + 1
	toEnd := scanTerminator(f, toStart)
	if toEnd < 0 {
		return Destination{}, 0, fmt.Errorf("%w: no terminator for to", ErrMalformedAddress)
	}

	from := make(Path, fromLen)
	for i := range from {
		from[i] = NodeID(getNibble(f, i))
	}
	to := make(Path, toEnd-toStart)
	for i := range to {
		to[i] = NodeID(getNibble(f, toStart+i))
	}

	d := Destination{from: from, to: to}
	return d, d.PreludeLength(), nil
}

// scanTerminator returns the index of the first zero nibble at or after start,
// or -1 if the frame holds none
func scanTerminator(f *Frame, start int) int {
	for i := start; i < MaxNibbles; i++ {
		if getNibble(f, i) == 0 {
			return i
		}
	}
	return -1
}

func getNibble(f *Frame, i int) byte {
	b := f[i/2]
	if i%2 == 0 {
		return b >> NibbleShift
	}
	return b & NibbleMask
}

func putNibble(f *Frame, i int, v byte) {
	v &= NibbleMask
	if i%2 == 0 {
		f[i/2] = (f[i/2] & NibbleMask) | v<<NibbleShift
	} else {
		f[i/2] = (f[i/2] &^ NibbleMask) | v
	}
}
