// ABOUTME: Multi-source jitter buffer and real-time mixer
// ABOUTME: Aligns timestamped streams on a shared playout clock and mixes them with a soft-knee law
package mixer

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/meshtalk/meshtalk-go/pkg/streambuf"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSampleRate    = 8000
	DefaultBufferMs      = 1000
	DefaultDelayMs       = 100
	DefaultIdleTimeout   = 600 * time.Millisecond
	DefaultMaxPlayingLag = 50 * time.Millisecond
)

// Config holds mixer parameters
type Config struct {
	SampleRate int // samples per second
	BufferMs   int // per-source window, in milliseconds
	// DelaySamples is how far behind its first timestamp a source starts playing
	DelaySamples  int
	IdleTimeout   time.Duration // sources without writes for this long are dropped
	MaxPlayingLag time.Duration // lateness tolerated before skipping ahead
	Clock         clock.Clock
}

// DefaultConfig returns the 8 kHz voice configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:    DefaultSampleRate,
		BufferMs:      DefaultBufferMs,
		DelaySamples:  ToSamples(DefaultDelayMs*time.Millisecond, DefaultSampleRate),
		IdleTimeout:   DefaultIdleTimeout,
		MaxPlayingLag: DefaultMaxPlayingLag,
		Clock:         clock.New(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BufferMs <= 0 {
		c.BufferMs = d.BufferMs
	}
	if c.DelaySamples < 0 {
		c.DelaySamples = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxPlayingLag <= 0 {
		c.MaxPlayingLag = d.MaxPlayingLag
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// ToSamples converts a duration to a sample count at rate
func ToSamples(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// Stats is a snapshot of mixer counters
type Stats struct {
	ActiveSources  int
	SourcesCreated uint64
	SourcesExpired uint64
	LagCorrections uint64
	SamplesSkipped uint64
	ClippedWrites  uint64 // writes partially outside a source window
	DroppedWrites  uint64 // writes entirely outside a source window
	SamplesMixed   uint64
}

type source struct {
	ssrc      uint32
	buffer    *streambuf.StreamBuffer
	lastTouch time.Time
	lastRaw   uint32
	timestamp int64 // unwrapped lastRaw
}

// unwrap extends a 32-bit timestamp relative to the previous one
func (s *source) unwrap(raw uint32) int64 {
	s.timestamp += int64(int32(raw - s.lastRaw))
	s.lastRaw = raw
	return s.timestamp
}

// Mixer merges independently timestamped PCM streams into one real-time stream.
//
// Each source (identified by SSRC) gets its own StreamBuffer. All sources are
// read at a shared cursor paced by the clock: cursor sample c plays at
// origin + c/rate.
type Mixer struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg        Config
	clk        clock.Clock
	bufferSize int

	sources   []*source
	origin    time.Time
	cursor    int64
	nextSweep time.Time

	closed bool
	done   chan struct{}

	stats Stats
}

// New creates a mixer
func New(cfg Config) *Mixer {
	cfg = cfg.withDefaults()
	m := &Mixer{
		cfg:        cfg,
		clk:        cfg.Clock,
		bufferSize: 2 * cfg.SampleRate * cfg.BufferMs / 1000,
		done:       make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Rate returns the sample rate
func (m *Mixer) Rate() int { return m.cfg.SampleRate }

// BufferMs returns the per-source window length in milliseconds
func (m *Mixer) BufferMs() int { return m.cfg.BufferMs }

// Origin returns the wall time of cursor 0
func (m *Mixer) Origin() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.origin
}

// Cursor returns the index of the next sample to be read
func (m *Mixer) Cursor() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// SourceCount returns the number of live sources
func (m *Mixer) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Stats returns a snapshot of the mixer counters
func (m *Mixer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.ActiveSources = len(m.sources)
	return s
}

// Write stores PCM from ssrc whose first sample has the given timestamp.
// It returns the number of bytes that landed inside the source window.
func (m *Mixer) Write(ssrc uint32, timestamp uint32, pcm []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.sourceFor(ssrc, timestamp)
	src.lastTouch = m.clk.Now()
	ts := src.unwrap(timestamp)

	written := src.buffer.Write(2*ts, pcm)
	switch {
	case written == 0 && len(pcm) > 0:
		m.stats.DroppedWrites++
	case written < len(pcm):
		m.stats.ClippedWrites++
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.WithFields(logrus.Fields{
			"component": "mixer",
			"ssrc":      ssrc,
			"timestamp": timestamp,
			"bytes":     len(pcm),
			"written":   written,
		}).Trace("write")
	}
	return written
}

// sourceFor returns the source for ssrc, creating it if needed (must hold m.mu)
func (m *Mixer) sourceFor(ssrc uint32, timestamp uint32) *source {
	if len(m.sources) == 0 {
		m.origin = m.clk.Now()
		m.cursor = 0
		defer m.cond.Broadcast()
	} else {
		for _, src := range m.sources {
			if src.ssrc == ssrc {
				return src
			}
		}
	}

	start := int64(timestamp) - int64(m.cfg.DelaySamples)
	src := &source{
		ssrc:      ssrc,
		buffer:    streambuf.New(m.bufferSize, 2*start),
		lastRaw:   timestamp,
		timestamp: int64(timestamp),
	}
	m.sources = append(m.sources, src)
	m.stats.SourcesCreated++

	logrus.WithFields(logrus.Fields{
		"component": "mixer",
		"ssrc":      ssrc,
		"timestamp": timestamp,
		"sources":   len(m.sources),
	}).Debug("New source")
	return src
}

// sweep drops sources idle for longer than the idle timeout (must hold m.mu)
func (m *Mixer) sweep() {
	now := m.clk.Now()
	if m.nextSweep.After(now) {
		return
	}

	notOlderThan := now.Add(-m.cfg.IdleTimeout)
	var oldest time.Time
	kept := m.sources[:0]
	for _, src := range m.sources {
		if src.lastTouch.Before(notOlderThan) {
			m.stats.SourcesExpired++
			logrus.WithFields(logrus.Fields{
				"component": "mixer",
				"ssrc":      src.ssrc,
				"idle":      now.Sub(src.lastTouch),
			}).Debug("Source expired")
			continue
		}
		if oldest.IsZero() || src.lastTouch.Before(oldest) {
			oldest = src.lastTouch
		}
		kept = append(kept, src)
	}
	clear(m.sources[len(kept):])
	m.sources = kept

	if !oldest.IsZero() {
		m.nextSweep = oldest.Add(m.cfg.IdleTimeout)
	}
}

// Read blocks until data is due and fills data with the mix of all sources.
//
// Read waits while there are no sources and paces itself so that it never
// returns samples ahead of the clock. When the reader has fallen more than
// MaxPlayingLag behind, the lag is skipped. Read does not advance the
// cursor; call Move with the returned count. Returns 0 once closed.
func (m *Mixer) Read(data []byte) int {
	length := len(data) &^ 1

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		m.sweep()

		for !m.closed && len(m.sources) == 0 {
			m.cond.Wait()
		}
		if m.closed {
			return 0
		}

		now := m.clk.Now()
		deadline := m.origin.Add(m.sampleDuration(m.cursor + int64(length/2)))

		if deadline.After(now) {
			if !m.sleep(deadline.Sub(now)) {
				return 0
			}
			if len(m.sources) == 0 {
				continue
			}
		} else if lag := now.Sub(deadline); lag > m.cfg.MaxPlayingLag {
			samples := ToSamples(lag, m.cfg.SampleRate)
			m.move(2 * samples)
			m.stats.LagCorrections++
			m.stats.SamplesSkipped += uint64(samples)
			logrus.WithFields(logrus.Fields{
				"component": "mixer",
				"lag":       lag,
				"samples":   samples,
			}).Warn("Playing lag, skipping ahead")
		}

		break
	}

	m.mix(data[:length])
	m.stats.SamplesMixed += uint64(length / 2)
	return length
}

// sleep waits for d with the lock released; false if closed meanwhile (must hold m.mu)
func (m *Mixer) sleep(d time.Duration) bool {
	m.mu.Unlock()
	select {
	case <-m.clk.After(d):
	case <-m.done:
	}
	m.mu.Lock()
	return !m.closed
}

func (m *Mixer) sampleDuration(samples int64) time.Duration {
	return time.Duration(samples * int64(time.Second) / int64(m.cfg.SampleRate))
}

// mix sums the aligned window of every source into out (must hold m.mu)
func (m *Mixer) mix(out []byte) {
	n := len(m.sources)
	sums := make([]int32, len(out)/2)
	buf := make([]byte, len(out))

	for _, src := range m.sources {
		src.buffer.Read(buf)
		for j := range sums {
			sums[j] += int32(audio.SampleAt(buf, j))
		}
	}

	for i, sum := range sums {
		audio.PutSample(out, i, MixSample(sum, n))
	}
}

// MixSample maps the sum of n samples back to the 16-bit range.
//
// With z = sum/(n*32768) in [-1, 1] the result is sgn(z)*(1-(1-|z|)^n):
// identity for one source, soft saturation as sources pile up.
func MixSample(sum int32, n int) int16 {
	if n <= 0 {
		return 0
	}
	z := float64(sum) / (float64(n) * 32768.0)
	sgn := 1.0
	if z < 0 {
		sgn = -1.0
	}
	g := sgn * (1 - math.Pow(1-sgn*z, float64(n)))

	res := int(g * 32768)
	if res >= 32768 {
		res = audio.MaxInt16
	}
	if res < audio.MinInt16 {
		res = audio.MinInt16
	}
	return int16(res)
}

// Move advances every source and the cursor by bytes (rounded down to even)
func (m *Mixer) Move(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.move(bytes)
}

func (m *Mixer) move(bytes int) {
	bytes &^= 1
	for _, src := range m.sources {
		src.buffer.Move(int64(bytes))
	}
	m.cursor += int64(bytes / 2)
}

// Flush drops every source
func (m *Mixer) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sources)
	m.sources = m.sources[:0]
	m.nextSweep = time.Time{}
}

// Close wakes any blocked reader; subsequent reads return 0
func (m *Mixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
	m.cond.Broadcast()
}
