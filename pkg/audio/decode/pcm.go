// ABOUTME: PCM audio decoder
// ABOUTME: Identity decoding of 16-bit PCM bytes
package decode

// PCMDecoder passes PCM through unchanged
type PCMDecoder struct{}

// NewPCM creates a new PCM decoder
func NewPCM() Decoder {
	return &PCMDecoder{}
}

// Decode returns a copy of the data, dropping a trailing odd byte
func (d *PCMDecoder) Decode(data []byte) ([]byte, error) {
	output := make([]byte, len(data)&^1)
	copy(output, data)
	return output, nil
}

// Ratio returns 1
func (d *PCMDecoder) Ratio() int { return 1 }

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
