// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all wire decoders and the compression factory
package decode

import (
	"fmt"

	"github.com/meshtalk/meshtalk-go/pkg/audio"
)

// Decoder decodes wire audio to little-endian 16-bit PCM
type Decoder interface {
	// Decode converts encoded audio data to PCM bytes
	Decode(data []byte) ([]byte, error)

	// Ratio is the number of PCM bytes produced per encoded byte
	Ratio() int

	// Close releases decoder resources
	Close() error
}

// New creates the decoder for a compression mode
func New(c audio.Compression) (Decoder, error) {
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
