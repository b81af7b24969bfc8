// ABOUTME: Receiver pipeline: receive voice packets into the mixer and play the mix
// ABOUTME: Runs a bufferizer and a player stage per session around a fresh jitter buffer
package walkietalkie

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/meshtalk/meshtalk-go/pkg/audio/decode"
	"github.com/meshtalk/meshtalk-go/pkg/audio/output"
	"github.com/meshtalk/meshtalk-go/pkg/mixer"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// ReceiverStats is a snapshot of receiver counters, cumulative across
// sessions, plus the mixer counters of the current session
type ReceiverStats struct {
	PacketsReceived uint64
	PacketsDropped  uint64 // malformed or undecodable
	ReceiveErrors   uint64
	BytesPlayed     uint64
	Mixer           mixer.Stats
}

// Receiver plays everything sent to its port.
//
// A session runs two stages: the bufferizer receives packets and writes
// them into the mixer by SSRC and timestamp; the player reads the mix at
// the real-time pace and writes it to the output device.
type Receiver struct {
	tr  transport.Transport
	cfg ReceiverConfig
	log *logrus.Entry

	mu      sync.Mutex
	session *receiverSession
	lastErr error

	packetsReceived atomic.Uint64
	packetsDropped  atomic.Uint64
	receiveErrors   atomic.Uint64
	bytesPlayed     atomic.Uint64
}

// NewReceiver creates a stopped receiver
func NewReceiver(tr transport.Transport, cfg ReceiverConfig) *Receiver {
	return &Receiver{
		tr:  tr,
		cfg: cfg.withDefaults(),
		log: logrus.WithField("component", "receiver"),
	}
}

// Start begins receiving. A running receiver is restarted with a fresh mixer.
func (r *Receiver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	w := &receiverSession{
		receiver: r,
		ctx:      ctx,
		cancel:   cancel,
		mixer:    mixer.New(r.cfg.mixerConfig()),
		done:     make(chan struct{}),
	}
	r.session = w
	r.lastErr = nil

	r.log.WithFields(logrus.Fields{
		"port":        r.cfg.Port,
		"compression": r.cfg.Compression.String(),
		"buffer_ms":   r.cfg.BufferMs,
		"delay":       r.cfg.Delay,
	}).Info("Receiver starting")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.finish(w.bufferize())
	}()
	go func() {
		defer wg.Done()
		w.finish(w.play())
	}()
	go func() {
		wg.Wait()
		close(w.done)
	}()
}

// Stop ends the current session and waits for both stages. Idempotent.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Receiver) stopLocked() {
	if r.session == nil {
		return
	}
	w := r.session
	r.session = nil
	w.stop()
	<-w.done
	if err := w.failure(); err != nil {
		r.lastErr = err
	}
	r.log.Info("Receiver stopped")
}

// Running reports whether a session is active
func (r *Receiver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return false
	}
	select {
	case <-r.session.done:
		return false
	default:
		return true
	}
}

// Err returns the error that ended the last session, if it failed
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return r.session.failure()
	}
	return r.lastErr
}

// Mixer returns the jitter buffer of the current session, nil when stopped
func (r *Receiver) Mixer() *mixer.Mixer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	return r.session.mixer
}

// Stats returns the receiver counters
func (r *Receiver) Stats() ReceiverStats {
	st := ReceiverStats{
		PacketsReceived: r.packetsReceived.Load(),
		PacketsDropped:  r.packetsDropped.Load(),
		ReceiveErrors:   r.receiveErrors.Load(),
		BytesPlayed:     r.bytesPlayed.Load(),
	}
	if m := r.Mixer(); m != nil {
		st.Mixer = m.Stats()
	}
	return st
}

// receiverSession is one Start..Stop run of the receiver
type receiverSession struct {
	receiver *Receiver
	ctx      context.Context
	cancel   context.CancelFunc
	mixer    *mixer.Mixer
	done     chan struct{}

	mu       sync.Mutex
	stopped  bool
	endpoint transport.Endpoint
	output   output.Output
	err      error
}

// stop cancels both stages and releases whatever they are blocked on
func (w *receiverSession) stop() {
	w.mu.Lock()
	w.stopped = true
	ep, out := w.endpoint, w.output
	w.mu.Unlock()

	w.cancel()
	if ep != nil {
		ep.Close()
	}
	w.mixer.Close()
	if out != nil {
		out.Close()
	}
}

// finish tears the whole session down when one stage fails
func (w *receiverSession) finish(err error) {
	if err == nil || w.ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()

	w.receiver.log.WithError(err).Error("Receiver failed")
	w.stop()
}

func (w *receiverSession) failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// setEndpoint publishes the endpoint so stop can close it
func (w *receiverSession) setEndpoint(ep transport.Endpoint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.endpoint = ep
	return true
}

// setOutput publishes the output device so stop can close it
func (w *receiverSession) setOutput(out output.Output) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.output = out
	return true
}

// bufferize receives packets and writes them into the mixer
func (w *receiverSession) bufferize() error {
	r := w.receiver
	cfg := r.cfg

	dec, err := decode.New(cfg.Compression)
	if err != nil {
		return err
	}
	defer dec.Close()

	ep, err := openWithRetry(w.ctx, r.tr, cfg.Port, cfg.OpenRetries, cfg.RetryDelay, cfg.Clock, r.log)
	if err != nil {
		return err
	}
	if !w.setEndpoint(ep) {
		ep.Close()
		return nil
	}
	defer ep.Close()

	r.log.WithField("local", ep.LocalAddr().String()).Info("Receiver listening")

	buf := make([]byte, protocol.MaxPacketSize)
	failures := 0
	for {
		n, from, err := ep.Receive(buf)
		if err != nil {
			if w.ctx.Err() != nil {
				return nil
			}
			r.receiveErrors.Add(1)
			failures++
			r.log.WithError(err).Warn("Cannot receive data")
			// something is definitely wrong
			if failures > cfg.MaxReceiveFailures {
				return fmt.Errorf("%d consecutive receive failures: %w", failures, err)
			}
			continue
		}
		failures = 0

		header, payload, err := protocol.ParseHeader(buf[:n])
		if err != nil {
			r.packetsDropped.Add(1)
			r.log.WithFields(logrus.Fields{
				"from":  from.String(),
				"error": err,
			}).Debug("Dropping malformed packet")
			continue
		}

		pcm, err := dec.Decode(payload)
		if err != nil {
			r.packetsDropped.Add(1)
			r.log.WithError(err).Debug("Dropping undecodable packet")
			continue
		}

		written := w.mixer.Write(header.SSRC, header.Timestamp, pcm)
		r.packetsReceived.Add(1)

		if r.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			r.log.WithFields(logrus.Fields{
				"ssrc":      header.SSRC,
				"seq":       header.Seq,
				"timestamp": header.Timestamp,
				"written":   written,
			}).Debug("Packet buffered")
		}
	}
}

// play pulls the mix at the real-time pace and writes it to the output
func (w *receiverSession) play() error {
	r := w.receiver
	cfg := r.cfg

	out, err := cfg.NewOutput()
	if err == nil {
		err = out.Open(cfg.SampleRate, 1)
	}
	if err != nil {
		return fmt.Errorf("failed to open output device: %w", err)
	}
	defer out.Close()
	if !w.setOutput(out) {
		return nil
	}

	buf := make([]byte, cfg.playChunk())
	for {
		n := w.mixer.Read(buf)
		if n == 0 {
			if w.ctx.Err() != nil {
				return nil
			}
			return errMixerStopped
		}
		w.mixer.Move(n)

		if err := out.Write(buf[:n]); err != nil {
			if w.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to write output: %w", err)
		}
		r.bytesPlayed.Add(uint64(n))
	}
}
