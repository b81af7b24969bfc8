// ABOUTME: Device-less audio output
// ABOUTME: Counts written audio and optionally records it, for headless nodes and tests
package output

import (
	"sync"

	"github.com/meshtalk/meshtalk-go/pkg/audio"
)

// Discard is an output without a device. It keeps counters and, when
// recording, every byte written.
type Discard struct {
	mu         sync.Mutex
	record     bool
	recorded   []byte
	written    uint64
	opened     bool
	closed     bool
	sampleRate int
	volume     int
	muted      bool
}

// NewDiscard creates an output that drops audio
func NewDiscard() *Discard {
	return &Discard{volume: 100}
}

// NewRecorder creates an output that keeps everything written to it
func NewRecorder() *Discard {
	return &Discard{volume: 100, record: true}
}

// Open marks the output ready
func (d *Discard) Open(sampleRate, channels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	d.closed = false
	d.sampleRate = sampleRate
	return nil
}

// Write accounts for pcm
func (d *Discard) Write(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.opened {
		return ErrClosed
	}
	d.written += uint64(len(pcm))
	if d.record {
		d.recorded = append(d.recorded, applyVolume(pcm, d.volume, d.muted)...)
	}
	return nil
}

// Close stops accepting writes
func (d *Discard) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// BytesWritten returns the number of bytes written since creation
func (d *Discard) BytesWritten() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Samples returns a copy of the recorded audio as samples
func (d *Discard) Samples() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return audio.BytesToSamples(d.recorded)
}

// Opened reports whether Open was called and Close was not
func (d *Discard) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened && !d.closed
}

// SetVolume sets the volume (0-100)
func (d *Discard) SetVolume(volume int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = clampVolume(volume)
}

// SetMuted sets mute state
func (d *Discard) SetMuted(muted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = muted
}

// GetVolume returns current volume
func (d *Discard) GetVolume() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// IsMuted returns mute state
func (d *Discard) IsMuted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}
