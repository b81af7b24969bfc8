// ABOUTME: Audio decoder package for wire format support
// ABOUTME: Provides Decoder interface and PCM, 8-bit truncation, A-law implementations
// Package decode provides audio decoders for the supported compressions.
//
// Supports: PCM (identity), 8-bit truncation, A-law
//
// All decoders implement the Decoder interface and output little-endian
// 16-bit mono PCM bytes ready to be written into the mixer.
//
// Example:
//
//	decoder, err := decode.New(audio.ALaw)
//	pcm, err := decoder.Decode(payload)
package decode
