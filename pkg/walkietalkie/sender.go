// ABOUTME: Sender pipeline: capture, encode and send voice packets to recipients
// ABOUTME: Keeps packet timestamps aligned with the wall clock despite capture drift
package walkietalkie

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/meshtalk/meshtalk-go/pkg/audio/encode"
	"github.com/meshtalk/meshtalk-go/pkg/audio/input"
	"github.com/meshtalk/meshtalk-go/pkg/mixer"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// SenderStats is a snapshot of sender counters, cumulative across sessions
type SenderStats struct {
	PacketsSent      uint64 // datagrams handed to the transport
	SendErrors       uint64
	DriftCorrections uint64
	BytesCaptured    uint64
}

// Sender streams the local microphone to a list of recipients.
//
// Each Start begins a session on its own goroutine: the mesh socket is
// opened (with retries), the input device started, and one packet per
// captured chunk is sent to every recipient until Stop.
type Sender struct {
	tr  transport.Transport
	cfg SenderConfig
	log *logrus.Entry

	mu      sync.Mutex
	session *senderSession
	lastErr error

	packetsSent      atomic.Uint64
	sendErrors       atomic.Uint64
	driftCorrections atomic.Uint64
	bytesCaptured    atomic.Uint64
}

// NewSender creates a stopped sender
func NewSender(tr transport.Transport, cfg SenderConfig) *Sender {
	return &Sender{
		tr:  tr,
		cfg: cfg.withDefaults(),
		log: logrus.WithField("component", "sender"),
	}
}

// Start begins streaming to recipients. A running sender is restarted with
// the new recipient list.
func (s *Sender) Start(recipients ...transport.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	w := &senderSession{
		sender:     s,
		recipients: append([]transport.Addr(nil), recipients...),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.session = w
	s.lastErr = nil

	s.log.WithFields(logrus.Fields{
		"recipients":  len(recipients),
		"compression": s.cfg.Compression.String(),
		"packet_size": s.cfg.PacketSize,
	}).Info("Sender starting")

	go w.run()
}

// Stop ends the current session and waits for it. Idempotent.
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sender) stopLocked() {
	if s.session == nil {
		return
	}
	w := s.session
	s.session = nil
	w.stop()
	<-w.done
	if w.err != nil {
		s.lastErr = w.err
	}
	s.log.Info("Sender stopped")
}

// Running reports whether a session is active
func (s *Sender) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	select {
	case <-s.session.done:
		return false
	default:
		return true
	}
}

// Recipients returns the recipients of the current session
func (s *Sender) Recipients() []transport.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return append([]transport.Addr(nil), s.session.recipients...)
}

// Err returns the error that ended the last session, if it failed
func (s *Sender) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		select {
		case <-s.session.done:
			return s.session.err
		default:
			return nil
		}
	}
	return s.lastErr
}

// Stats returns the sender counters
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		PacketsSent:      s.packetsSent.Load(),
		SendErrors:       s.sendErrors.Load(),
		DriftCorrections: s.driftCorrections.Load(),
		BytesCaptured:    s.bytesCaptured.Load(),
	}
}

// senderSession is one Start..Stop run of the sender
type senderSession struct {
	sender     *Sender
	recipients []transport.Addr
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	err        error // set before done is closed

	mu      sync.Mutex
	stopped bool
	device  input.Device
}

// stop cancels the session and forces the device out of a blocking read
func (w *senderSession) stop() {
	w.mu.Lock()
	w.stopped = true
	device := w.device
	w.mu.Unlock()

	w.cancel()
	if device != nil {
		if err := device.Stop(); err != nil {
			w.sender.log.WithError(err).Warn("Cannot stop input device")
		}
	}
}

func (w *senderSession) run() {
	defer close(w.done)
	defer w.cancel()

	if err := w.stream(); err != nil && w.ctx.Err() == nil {
		w.err = err
		w.sender.log.WithError(err).Error("Sender failed")
	}
}

// startDevice creates and starts the input device unless the session was stopped
func (w *senderSession) startDevice() (input.Device, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil, context.Canceled
	}
	device, err := w.sender.cfg.NewInput()
	if err != nil {
		return nil, fmt.Errorf("failed to create input device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Close()
		return nil, fmt.Errorf("failed to start input device: %w", err)
	}
	w.device = device
	return device, nil
}

func (w *senderSession) stream() error {
	s := w.sender
	cfg := s.cfg

	enc, err := encode.New(cfg.Compression)
	if err != nil {
		return err
	}
	defer enc.Close()

	ep, err := openWithRetry(w.ctx, s.tr, cfg.LocalPort, cfg.OpenRetries, cfg.RetryDelay, cfg.Clock, s.log)
	if err != nil {
		return err
	}
	defer ep.Close()

	device, err := w.startDevice()
	if err != nil {
		return err
	}
	defer device.Close()

	// always read 16 bits per sample, send ratio times less
	readBuf := make([]byte, enc.Ratio()*protocol.PayloadSize(cfg.PacketSize))

	header := protocol.Header{SSRC: rand.Uint32()}
	var timestamp int64
	start := cfg.Clock.Now()

	log := s.log.WithField("ssrc", header.SSRC)
	log.WithField("local", ep.LocalAddr().String()).Info("Sender streaming")

	for w.ctx.Err() == nil {
		header.Timestamp = uint32(timestamp)

		n, err := device.Read(readBuf)
		if err != nil {
			if errors.Is(err, input.ErrStopped) || w.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		s.bytesCaptured.Add(uint64(n))

		payload, err := enc.Encode(readBuf[:n])
		if err != nil {
			return fmt.Errorf("failed to encode: %w", err)
		}
		packet := protocol.BuildPacket(header, payload)

		for _, to := range w.recipients {
			if err := ep.Send(packet, to); err != nil {
				s.sendErrors.Add(1)
				log.WithFields(logrus.Fields{
					"seq":   header.Seq,
					"to":    to.String(),
					"error": err,
				}).Warn("Cannot send packet")
				continue
			}
			s.packetsSent.Add(1)
		}

		// the microphone does not record at exactly the nominal rate
		fromStart := int64(max(0, mixer.ToSamples(cfg.Clock.Since(start), cfg.SampleRate)))
		if diff := fromStart - timestamp; diff > int64(cfg.DriftThreshold) || -diff > int64(cfg.DriftThreshold) {
			s.driftCorrections.Add(1)
			log.WithFields(logrus.Fields{
				"timestamp":   timestamp,
				"theoretical": fromStart,
			}).Info("Capture drift, correcting timestamp")
			timestamp = fromStart
		}

		header.Seq++
		timestamp += int64(n / 2)
	}
	return nil
}
