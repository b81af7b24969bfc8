// ABOUTME: 8-bit truncation decoder
// ABOUTME: Restores 16-bit samples from their high byte
package decode

// TruncateDecoder rebuilds samples with a zero low byte
type TruncateDecoder struct{}

// NewTruncate creates a new truncation decoder
func NewTruncate() Decoder {
	return &TruncateDecoder{}
}

// Decode converts one byte per sample to PCM bytes
func (d *TruncateDecoder) Decode(data []byte) ([]byte, error) {
	output := make([]byte, len(data)*2)
	for i, b := range data {
		output[2*i+1] = b
	}
	return output, nil
}

// Ratio returns 2
func (d *TruncateDecoder) Ratio() int { return 2 }

// Close releases resources
func (d *TruncateDecoder) Close() error {
	return nil
}
