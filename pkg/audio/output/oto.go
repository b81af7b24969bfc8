// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams PCM through a pipe into a persistent oto player with software volume
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// oto allows a single context per process
var (
	otoCtxOnce sync.Once
	otoCtx     *oto.Context
	otoCtxErr  error
	otoRate    int
	otoChans   int
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	volume     int
	muted      bool
	ready      bool
}

// NewOto creates a new Oto output
func NewOto() Output {
	return &Oto{
		volume: 100,
	}
}

func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoCtxErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan
		otoCtx = ctx
		otoRate = sampleRate
		otoChans = channels
	})
	if otoCtxErr != nil {
		return nil, otoCtxErr
	}
	if otoRate != sampleRate || otoChans != channels {
		logrus.WithFields(logrus.Fields{
			"component": "output",
			"backend":   "oto",
		}).Warnf("oto context already running at %dHz/%dch, requested %dHz/%dch",
			otoRate, otoChans, sampleRate, channels)
	}
	return otoCtx, nil
}

// Open initializes the output device
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return nil
	}

	ctx, err := sharedOtoContext(sampleRate, channels)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	// Persistent player reading from a pipe for continuous streaming
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = ctx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true

	logrus.WithFields(logrus.Fields{
		"component":   "output",
		"backend":     "oto",
		"sample_rate": sampleRate,
		"channels":    channels,
	}).Info("Audio output initialized")
	return nil
}

// Write outputs audio (blocks until the player consumed it)
func (o *Oto) Write(pcm []byte) error {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return ErrClosed
	}
	w := o.pipeWriter
	volumed := applyVolume(pcm, o.volume, o.muted)
	o.mu.Unlock()

	if _, err := w.Write(volumed); err != nil {
		if err == io.ErrClosedPipe {
			return ErrClosed
		}
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeReader != nil {
		// unblocks a pending Write
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clampVolume(volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}
