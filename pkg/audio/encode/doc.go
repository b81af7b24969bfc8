// ABOUTME: Audio encoder package for encoding PCM to wire formats
// ABOUTME: Provides Encoder interface and PCM, 8-bit truncation, A-law implementations
// Package encode provides audio encoders for the supported compressions.
//
// Supports: PCM (identity), 8-bit truncation, A-law
//
// All encoders accept little-endian 16-bit mono PCM bytes. Encoders are
// stateless and safe for concurrent use.
//
// Example:
//
//	encoder, err := encode.New(audio.ALaw)
//	data, err := encoder.Encode(pcm)
package encode
