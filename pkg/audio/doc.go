// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Compression and 16-bit PCM conversion functions
// Package audio provides fundamental audio types and utilities for voice streams.
//
// This package defines core types used throughout the meshtalk library:
//   - Format: Describes a raw PCM stream (sample rate, channels, bit depth)
//   - Compression: Selects the wire representation of PCM and its byte ratio
//
// PCM is always little-endian signed 16-bit. Helpers convert between byte
// slices and samples, and EncodeALaw/DecodeALaw implement the one-byte
// companding law used on the wire.
//
// Example:
//
//	c, err := audio.ParseCompression("alaw")
//	wireBytes := len(pcm) / c.Ratio()
//
//	b := audio.EncodeALaw(sample)
//	restored := audio.DecodeALaw(b)
package audio
