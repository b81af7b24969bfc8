// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for audio playback backends and software volume
package output

import (
	"errors"
	"fmt"

	"github.com/meshtalk/meshtalk-go/pkg/audio"
)

// ErrClosed is returned by Write after Close
var ErrClosed = errors.New("output: closed")

// Output represents an audio output device
type Output interface {
	// Open initializes the output device for 16-bit PCM
	Open(sampleRate, channels int) error

	// Write outputs little-endian 16-bit PCM (blocks until queued)
	Write(pcm []byte) error

	// Close releases output resources and unblocks pending writes. Idempotent.
	Close() error
}

// VolumeControl is implemented by outputs with software volume
type VolumeControl interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}

// New creates an output backend by name: "malgo", "oto" or "discard"
func New(backend string) (Output, error) {
	switch backend {
	case "", "malgo":
		return NewMalgo(), nil
	case "oto":
		return NewOto(), nil
	case "discard", "none":
		return NewDiscard(), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s", backend)
	}
}

// applyVolume applies volume and mute to PCM with clipping protection
func applyVolume(pcm []byte, volume int, muted bool) []byte {
	multiplier := getVolumeMultiplier(volume, muted)

	result := make([]byte, len(pcm)&^1)
	for i := 0; i < len(result)/2; i++ {
		scaled := int64(float64(audio.SampleAt(pcm, i)) * multiplier)
		audio.PutSample(result, i, audio.ClampInt16(scaled))
	}
	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
