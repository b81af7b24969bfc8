// ABOUTME: Test tone generator input
// ABOUTME: Generates a sine wave paced in real time
package input

import (
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
)

// Tone generates a sine wave at 50% volume
type Tone struct {
	mu          sync.Mutex
	format      audio.Format
	frequency   float64
	sampleIndex uint64
	pacer       *pacer
	stopCh      chan struct{}
	stopOnce    sync.Once
	started     bool
}

// NewTone creates a new tone generator; frequency 0 means 440 Hz
func NewTone(frequency float64, format audio.Format, clk clock.Clock) *Tone {
	if frequency <= 0 {
		frequency = 440.0 // A4 note
	}
	if clk == nil {
		clk = clock.New()
	}
	stop := make(chan struct{})
	return &Tone{
		format:    format,
		frequency: frequency,
		stopCh:    stop,
		pacer:     newPacer(clk, format.SampleRate, stop),
	}
}

// Start begins generation
func (s *Tone) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Read fills pcm with the next samples of the tone once they are due
func (s *Tone) Read(pcm []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return 0, ErrStopped
	}

	numSamples := len(pcm) / 2
	if !s.pacer.wait(numSamples) {
		return 0, ErrStopped
	}

	for i := 0; i < numSamples; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)
		audio.PutSample(pcm, i, int16(sample*32767.0*0.5))
	}
	s.sampleIndex += uint64(numSamples)

	return numSamples * 2, nil
}

// Stop ends generation and unblocks Read
func (s *Tone) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Close releases resources
func (s *Tone) Close() error {
	return s.Stop()
}
