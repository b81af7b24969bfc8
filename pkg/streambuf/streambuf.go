// ABOUTME: Fixed-size circular window over an unbounded byte stream
// ABOUTME: Writes land at absolute stream offsets; reads always return a full window prefix
package streambuf

import "sync"

// StreamBuffer holds the bytes of a stream between Offset() and Offset()+Len().
//
// buf[head] holds stream byte offset. Bytes never written read as zero.
type StreamBuffer struct {
	mu     sync.Mutex
	buf    []byte
	offset int64
	head   int
}

// New creates a buffer of length bytes whose window starts at streamOffset
func New(length int, streamOffset int64) *StreamBuffer {
	if length <= 0 {
		panic("streambuf: length must be positive")
	}
	return &StreamBuffer{
		buf:    make([]byte, length),
		offset: streamOffset,
	}
}

// Len returns the window length in bytes
func (b *StreamBuffer) Len() int {
	return len(b.buf)
}

// Offset returns the stream offset of the first byte of the window
func (b *StreamBuffer) Offset() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

// Write stores data as stream bytes [streamOffset, streamOffset+len(data)).
//
// Only the part that falls inside the window is kept. The number of bytes
// stored is returned: 0 when the data lies entirely past the window
// (overflow) or entirely before it (underrun).
func (b *StreamBuffer) Write(streamOffset int64, data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	length := int64(len(b.buf))
	start := streamOffset - b.offset
	if start >= length {
		return 0
	}

	if start < 0 {
		// drop the bytes that are already behind the window
		if -start >= int64(len(data)) {
			return 0
		}
		data = data[-start:]
		start = 0
	}

	if int64(len(data)) > length-start {
		data = data[:length-start]
	}
	if len(data) == 0 {
		return 0
	}

	pos := (b.head + int(start)) % len(b.buf)
	n := copy(b.buf[pos:], data)
	copy(b.buf, data[n:])
	return len(data)
}

// Read copies the first len(data) bytes of the window into data.
//
// Read does not consume anything and always returns len(data); bytes past
// the window read as zero.
func (b *StreamBuffer) Read(data []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := data
	if len(window) > len(b.buf) {
		window = data[:len(b.buf)]
		clear(data[len(b.buf):])
	}

	n := copy(window, b.buf[b.head:])
	copy(window[n:], b.buf)
	return len(data)
}

// Move slides the window by delta bytes, zeroing the bytes that leave it.
// A negative delta moves the window back.
func (b *StreamBuffer) Move(delta int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.offset += delta
	length := len(b.buf)

	if delta >= int64(length) || -delta >= int64(length) {
		clear(b.buf)
		b.head = 0
		return
	}

	switch {
	case delta > 0:
		d := int(delta)
		r := min(d, length-b.head)
		clear(b.buf[b.head : b.head+r])
		clear(b.buf[:d-r])
		b.head = (b.head + d) % length
	case delta < 0:
		d := int(-delta)
		r := min(d, b.head)
		clear(b.buf[b.head-r : b.head])
		clear(b.buf[length-(d-r):])
		b.head = (b.head - d + length) % length
	}
}

// Flush empties the buffer and rewinds it to stream offset 0
func (b *StreamBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.buf)
	b.offset = 0
	b.head = 0
}
