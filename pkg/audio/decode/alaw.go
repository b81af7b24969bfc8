// ABOUTME: A-law audio decoder
// ABOUTME: Expands A-law bytes to 16-bit PCM
package decode

import "github.com/meshtalk/meshtalk-go/pkg/audio"

// ALawDecoder expands A-law companded bytes
type ALawDecoder struct{}

// NewALaw creates a new A-law decoder
func NewALaw() Decoder {
	return &ALawDecoder{}
}

// Decode converts A-law bytes to PCM bytes
func (d *ALawDecoder) Decode(data []byte) ([]byte, error) {
	output := make([]byte, len(data)*2)
	for i, b := range data {
		audio.PutSample(output, i, audio.DecodeALaw(b))
	}
	return output, nil
}

// Ratio returns 2
func (d *ALawDecoder) Ratio() int { return 2 }

// Close releases resources
func (d *ALawDecoder) Close() error {
	return nil
}
