// ABOUTME: A-law audio encoder
// ABOUTME: Compands 16-bit PCM to one byte per sample
package encode

import "github.com/meshtalk/meshtalk-go/pkg/audio"

// ALawEncoder compands PCM with the A-law curve
type ALawEncoder struct{}

// NewALaw creates a new A-law encoder
func NewALaw() Encoder {
	return &ALawEncoder{}
}

// Encode converts PCM bytes to A-law bytes
func (e *ALawEncoder) Encode(pcm []byte) ([]byte, error) {
	output := make([]byte, len(pcm)/2)
	for i := range output {
		output[i] = audio.EncodeALaw(audio.SampleAt(pcm, i))
	}
	return output, nil
}

// Ratio returns 2
func (e *ALawEncoder) Ratio() int { return 2 }

// Close releases resources
func (e *ALawEncoder) Close() error {
	return nil
}
