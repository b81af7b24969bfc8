// Package input provides audio capture devices for the sender.
//
// Every device produces little-endian 16-bit mono PCM at the requested
// sample rate and blocks in Read until the requested amount is available,
// so the sender is paced by the device. Backends:
//
//   - malgo: the default microphone via miniaudio
//   - file:  an MP3 or FLAC file, looped and paced in real time
//   - tone:  a generated sine wave, paced in real time
//
// Stop unblocks a pending Read, which then returns ErrStopped.
package input
