// ABOUTME: 8-bit truncation encoder
// ABOUTME: Keeps the high byte of every 16-bit sample
package encode

// TruncateEncoder drops the low byte of every sample
type TruncateEncoder struct{}

// NewTruncate creates a new truncating encoder
func NewTruncate() Encoder {
	return &TruncateEncoder{}
}

// Encode converts PCM bytes to one byte per sample
func (e *TruncateEncoder) Encode(pcm []byte) ([]byte, error) {
	output := make([]byte, len(pcm)/2)
	for i := range output {
		high := int8(pcm[2*i+1])
		// negative high bytes round toward zero so that -1 maps to silence
		if high < 0 {
			high++
		}
		output[i] = byte(high)
	}
	return output, nil
}

// Ratio returns 2
func (e *TruncateEncoder) Ratio() int { return 2 }

// Close releases resources
func (e *TruncateEncoder) Close() error {
	return nil
}
