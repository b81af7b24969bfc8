// ABOUTME: Sender and receiver pipeline configuration
// ABOUTME: Defaults for ports, packet sizing, jitter buffering and socket open retries
package walkietalkie

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/meshtalk/meshtalk-go/pkg/audio/input"
	"github.com/meshtalk/meshtalk-go/pkg/audio/output"
	"github.com/meshtalk/meshtalk-go/pkg/mixer"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultServerPort is the port receivers listen on
	DefaultServerPort = 4444
	// DefaultClientPort is the local port senders send from
	DefaultClientPort = 5555

	DefaultOpenRetries        = 5
	DefaultRetryDelay         = 1500 * time.Millisecond
	DefaultMaxReceiveFailures = 3
	// DefaultDriftThreshold is the capture drift, in samples, tolerated before
	// the timestamp is snapped back to the wall clock
	DefaultDriftThreshold = 1000
)

// ErrOpenFailed is returned when a pipeline could not open its mesh socket
var ErrOpenFailed = errors.New("walkietalkie: cannot open mesh socket")

// errMixerStopped reports a mixer that stopped producing audio while the
// session was still running
var errMixerStopped = errors.New("walkietalkie: mixer stopped")

// InputFactory creates the capture device for a sender session
type InputFactory func() (input.Device, error)

// OutputFactory creates the playback device for a receiver session
type OutputFactory func() (output.Output, error)

// SenderConfig configures a Sender
type SenderConfig struct {
	Compression audio.Compression
	SampleRate  int
	PacketSize  int // 0 means protocol.PacketSize(Compression.Ratio())
	LocalPort   int

	OpenRetries    int
	RetryDelay     time.Duration
	DriftThreshold int // samples

	NewInput InputFactory
	Clock    clock.Clock
}

// DefaultSenderConfig returns the A-law 8 kHz sender configuration
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Compression:    audio.ALaw,
		SampleRate:     mixer.DefaultSampleRate,
		LocalPort:      DefaultClientPort,
		OpenRetries:    DefaultOpenRetries,
		RetryDelay:     DefaultRetryDelay,
		DriftThreshold: DefaultDriftThreshold,
	}
}

func (c SenderConfig) withDefaults() SenderConfig {
	d := DefaultSenderConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.PacketSize <= 0 {
		c.PacketSize = protocol.PacketSize(c.Compression.Ratio())
	}
	if c.LocalPort <= 0 {
		c.LocalPort = d.LocalPort
	}
	if c.OpenRetries <= 0 {
		c.OpenRetries = d.OpenRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = d.DriftThreshold
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.NewInput == nil {
		format := audio.Voice
		format.SampleRate = c.SampleRate
		c.NewInput = func() (input.Device, error) {
			return input.New(input.Config{Format: format, Clock: c.Clock})
		}
	}
	return c
}

// ReceiverConfig configures a Receiver
type ReceiverConfig struct {
	Compression audio.Compression
	SampleRate  int
	PacketSize  int // 0 means protocol.PacketSize(Compression.Ratio())
	Port        int

	OpenRetries        int
	RetryDelay         time.Duration
	MaxReceiveFailures int

	BufferMs      int
	Delay         time.Duration // playout delay behind the first timestamp of a source
	IdleTimeout   time.Duration
	MaxPlayingLag time.Duration

	NewOutput OutputFactory
	Clock     clock.Clock
}

// DefaultReceiverConfig returns the A-law 8 kHz receiver configuration
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Compression:        audio.ALaw,
		SampleRate:         mixer.DefaultSampleRate,
		Port:               DefaultServerPort,
		OpenRetries:        DefaultOpenRetries,
		RetryDelay:         DefaultRetryDelay,
		MaxReceiveFailures: DefaultMaxReceiveFailures,
		BufferMs:           mixer.DefaultBufferMs,
		Delay:              mixer.DefaultDelayMs * time.Millisecond,
		IdleTimeout:        mixer.DefaultIdleTimeout,
		MaxPlayingLag:      mixer.DefaultMaxPlayingLag,
	}
}

func (c ReceiverConfig) withDefaults() ReceiverConfig {
	d := DefaultReceiverConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.PacketSize <= 0 {
		c.PacketSize = protocol.PacketSize(c.Compression.Ratio())
	}
	if c.Port <= 0 {
		c.Port = d.Port
	}
	if c.OpenRetries <= 0 {
		c.OpenRetries = d.OpenRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxReceiveFailures <= 0 {
		c.MaxReceiveFailures = d.MaxReceiveFailures
	}
	if c.BufferMs <= 0 {
		c.BufferMs = d.BufferMs
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxPlayingLag <= 0 {
		c.MaxPlayingLag = d.MaxPlayingLag
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.NewOutput == nil {
		c.NewOutput = func() (output.Output, error) { return output.New("malgo") }
	}
	return c
}

// playChunk is the number of PCM bytes the player pulls per write: one
// packet payload, rounded down to whole samples
func (c ReceiverConfig) playChunk() int {
	n := protocol.PayloadSize(c.PacketSize) &^ 1
	if n < 2 {
		n = 2
	}
	return n
}

// mixerConfig derives the jitter buffer settings of one session
func (c ReceiverConfig) mixerConfig() mixer.Config {
	return mixer.Config{
		SampleRate:    c.SampleRate,
		BufferMs:      c.BufferMs,
		DelaySamples:  mixer.ToSamples(c.Delay, c.SampleRate),
		IdleTimeout:   c.IdleTimeout,
		MaxPlayingLag: c.MaxPlayingLag,
		Clock:         c.Clock,
	}
}

// openWithRetry opens port, retrying up to attempts times with delay between
// attempts. It gives up early when ctx is cancelled.
func openWithRetry(ctx context.Context, tr transport.Transport, port, attempts int, delay time.Duration, clk clock.Clock, log *logrus.Entry) (transport.Endpoint, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ep, err := tr.Open(port)
		if err == nil {
			return ep, nil
		}
		lastErr = err

		if errors.Is(err, transport.ErrClosed) || attempt == attempts {
			break
		}
		log.WithFields(logrus.Fields{
			"port":    port,
			"attempt": attempt,
			"error":   err,
		}).Warn("Cannot open mesh socket, retrying")

		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: port %d: %w", ErrOpenFailed, port, lastErr)
}
