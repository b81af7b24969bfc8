// ABOUTME: PCM audio encoder
// ABOUTME: Identity encoding of 16-bit PCM bytes
package encode

// PCMEncoder passes PCM through unchanged
type PCMEncoder struct{}

// NewPCM creates a new PCM encoder
func NewPCM() Encoder {
	return &PCMEncoder{}
}

// Encode returns a copy of the PCM bytes
func (e *PCMEncoder) Encode(pcm []byte) ([]byte, error) {
	output := make([]byte, len(pcm))
	copy(output, pcm)
	return output, nil
}

// Ratio returns 1
func (e *PCMEncoder) Ratio() int { return 1 }

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
