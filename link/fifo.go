package link

// FifoBuffer is a circular buffer holding serial bytes until they form
// complete blocks. It is not safe for concurrent use; Link guards it with
// its read mutex.
type FifoBuffer struct {
	buf   []byte
	head  int // index of the oldest byte
	count int
	flat  []byte // scratch for Bytes when the data wraps
}

// NewFifoBuffer creates a new FifoBuffer able to hold capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		flat: make([]byte, 0, capacity),
	}
}

// Write appends as much of data as fits and returns the number of bytes stored
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	tail := (f.head + f.count) % len(f.buf)
	first := copy(f.buf[tail:], data[:n])
	copy(f.buf, data[first:n])
	f.count += n
	return n
}

// Len returns the number of buffered bytes
func (f *FifoBuffer) Len() int {
	return f.count
}

// Free returns the number of bytes that can still be written
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.count
}

// Bytes returns the buffered data as one contiguous slice. The slice is only
// valid until the next Write, Discard or Reset.
func (f *FifoBuffer) Bytes() []byte {
	end := f.head + f.count
	if end <= len(f.buf) {
		return f.buf[f.head:end]
	}
	f.flat = append(f.flat[:0], f.buf[f.head:]...)
	f.flat = append(f.flat, f.buf[:end-len(f.buf)]...)
	return f.flat
}

// Discard drops n bytes from the front
func (f *FifoBuffer) Discard(n int) {
	n = min(n, f.count)
	f.head = (f.head + n) % len(f.buf)
	f.count -= n
	if f.count == 0 {
		f.head = 0
	}
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.count = 0
}
