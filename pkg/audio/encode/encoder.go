// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all wire encoders and the compression factory
package encode

import (
	"fmt"

	"github.com/meshtalk/meshtalk-go/pkg/audio"
)

// Encoder encodes little-endian 16-bit PCM to its wire representation
type Encoder interface {
	// Encode converts PCM bytes to encoded audio data
	Encode(pcm []byte) ([]byte, error)

	// Ratio is the number of PCM bytes consumed per encoded byte
	Ratio() int

	// Close releases encoder resources
	Close() error
}

// New creates the encoder for a compression mode
func New(c audio.Compression) (Encoder, error) {
	switch c {
	case audio.None:
		return NewPCM(), nil
	case audio.To8Bits:
		return NewTruncate(), nil
	case audio.ALaw:
		return NewALaw(), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}
