// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats, compression modes and 16-bit PCM sample helpers
package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// 16-bit audio range constants
	MaxInt16 = 32767
	MinInt16 = -32768

	// BytesPerSample is the width of one mono 16-bit PCM sample
	BytesPerSample = 2
)

// Format describes a raw PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Voice is the format carried end to end by the pipelines: 8 kHz mono 16-bit
var Voice = Format{SampleRate: 8000, Channels: 1, BitDepth: 16}

// BytesPerSecond returns the byte rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Compression selects how PCM is packed onto the wire
type Compression int

const (
	// None sends 16-bit PCM unchanged
	None Compression = iota
	// To8Bits keeps only the high byte of every sample
	To8Bits
	// ALaw compands every sample to one byte
	ALaw
)

// Ratio is the number of PCM bytes consumed per wire byte
func (c Compression) Ratio() int {
	switch c {
	case To8Bits, ALaw:
		return 2
	default:
		return 1
	}
}

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case To8Bits:
		return "8bit"
	case ALaw:
		return "alaw"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

// ParseCompression maps a configuration name to a Compression
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "pcm", "identity":
		return None, nil
	case "8bit", "8bits", "to8bits", "truncate":
		return To8Bits, nil
	case "alaw", "a-law", "g711a":
		return ALaw, nil
	default:
		return None, fmt.Errorf("unknown compression: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SampleAt reads the little-endian sample at sample index i
func SampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
}

// PutSample writes a little-endian sample at sample index i
func PutSample(pcm []byte, i int, sample int16) {
	binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(sample))
}

// BytesToSamples converts little-endian PCM bytes to samples, ignoring a trailing odd byte
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = SampleAt(pcm, i)
	}
	return samples
}

// SamplesToBytes converts samples to little-endian PCM bytes
func SamplesToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		PutSample(pcm, i, s)
	}
	return pcm
}

// ClampInt16 saturates v to the 16-bit range
func ClampInt16(v int64) int16 {
	if v > MaxInt16 {
		return MaxInt16
	}
	if v < MinInt16 {
		return MinInt16
	}
	return int16(v)
}
