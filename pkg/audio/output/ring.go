// ABOUTME: Blocking PCM ring buffer between writers and device callbacks
// ABOUTME: Writers wait for space; the callback side never blocks and zero-fills underruns
package output

import "sync"

// RingBuffer provides a thread-safe circular buffer for audio samples
type RingBuffer struct {
	buffer   []int16
	readPos  int
	writePos int
	size     int
	count    int // Number of samples currently in buffer
	closed   bool
	mu       sync.Mutex
	space    *sync.Cond
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{
		buffer: make([]int16, capacity),
		size:   capacity,
	}
	rb.space = sync.NewCond(&rb.mu)
	return rb
}

// Write adds samples, waiting for space; returns the count written before close
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(samples) {
		for rb.count == rb.size && !rb.closed {
			rb.space.Wait()
		}
		if rb.closed {
			break
		}
		for written < len(samples) && rb.count < rb.size {
			rb.buffer[rb.writePos] = samples[written]
			rb.writePos = (rb.writePos + 1) % rb.size
			rb.count++
			written++
		}
	}
	return written
}

// Read retrieves samples without blocking, zero-filling on underrun
func (rb *RingBuffer) Read(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := 0; i < len(samples) && rb.count > 0; i++ {
		samples[i] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
		rb.count--
		read++
	}

	// Zero-fill remaining if underrun
	clear(samples[read:])

	if read > 0 {
		rb.space.Broadcast()
	}
	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Close wakes blocked writers; later writes return immediately
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.space.Broadcast()
}
