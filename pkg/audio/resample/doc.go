// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates and channel counts
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, and keeps state between chunks.
//
// Example:
//
//	mono := resample.Downmix(stereo, 2)
//	r := resample.New(44100, 8000, 1)
//	n := r.Resample(mono, out)
package resample
