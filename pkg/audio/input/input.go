// ABOUTME: Audio input interface definition
// ABOUTME: Capture devices deliver 16-bit mono PCM in blocking fixed-size reads
package input

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
)

// ErrStopped is returned by Read once the device is stopped
var ErrStopped = errors.New("input: stopped")

// Device is an audio capture device
type Device interface {
	// Start begins capturing
	Start() error

	// Read blocks until pcm is filled with little-endian 16-bit mono PCM
	// and returns the number of bytes read. After Stop it returns ErrStopped.
	Read(pcm []byte) (int, error)

	// Stop ends capture immediately, unblocking a pending Read. Idempotent.
	Stop() error

	// Close releases the device
	Close() error
}

// Config selects and configures an input backend
type Config struct {
	Backend   string // "malgo", "file" or "tone"
	Format    audio.Format
	File      string  // audio file for the file backend
	Frequency float64 // tone frequency in Hz
	Clock     clock.Clock
}

// New creates an input device from cfg
func New(cfg Config) (Device, error) {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = audio.Voice
	}
	switch cfg.Backend {
	case "", "malgo":
		return NewMalgo(cfg.Format), nil
	case "file":
		return NewFile(cfg.File, cfg.Format, cfg.Clock)
	case "tone":
		return NewTone(cfg.Frequency, cfg.Format, cfg.Clock), nil
	default:
		return nil, fmt.Errorf("unknown input backend: %s", cfg.Backend)
	}
}

// pacer releases samples no faster than real time
type pacer struct {
	clk      clock.Clock
	rate     int
	start    time.Time
	produced int64
	stop     <-chan struct{}
}

func newPacer(clk clock.Clock, rate int, stop <-chan struct{}) *pacer {
	if clk == nil {
		clk = clock.New()
	}
	return &pacer{clk: clk, rate: rate, stop: stop}
}

// wait blocks until samples more samples are due; false if stopped
func (p *pacer) wait(samples int) bool {
	now := p.clk.Now()
	if p.start.IsZero() {
		p.start = now
	}
	p.produced += int64(samples)
	due := p.start.Add(time.Duration(p.produced * int64(time.Second) / int64(p.rate)))

	if d := due.Sub(now); d > 0 {
		select {
		case <-p.clk.After(d):
		case <-p.stop:
			return false
		}
	}

	select {
	case <-p.stop:
		return false
	default:
		return true
	}
}
