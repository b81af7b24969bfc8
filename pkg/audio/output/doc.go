// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with malgo, oto and device-less implementations
// Package output provides audio playback interfaces.
//
// Backends: malgo (miniaudio), oto, and Discard for headless nodes and tests.
// All outputs take little-endian 16-bit PCM and apply software volume.
//
// Example:
//
//	out, err := output.New("malgo")
//	err = out.Open(8000, 1)
//	err = out.Write(pcm)
package output
