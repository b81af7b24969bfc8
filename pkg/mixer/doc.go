// ABOUTME: Mixer package documentation
// ABOUTME: Describes the playout clock and the mixing law
// Package mixer merges several timestamped voice streams into one stream
// played in real time.
//
// Every source keeps its own StreamBuffer positioned so that the source
// plays DelaySamples after its first packet. A single reader drives the
// playout clock with Read and Move; Read sleeps until the requested samples
// are due and skips ahead when the reader falls behind.
//
// Mixing uses g(z) = sgn(z)*(1-(1-|z|)^n) on the normalized sum z of n
// sources, which leaves a lone source untouched and never clips.
//
// Example:
//
//	m := mixer.New(mixer.DefaultConfig())
//	go func() { m.Write(ssrc, timestamp, pcm) }()
//	n := m.Read(buf)
//	m.Move(n)
package mixer
