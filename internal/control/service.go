// ABOUTME: Walkie-talkie control service
// ABOUTME: Drives one sender and one receiver, deferring start commands until the mesh is ready
package control

import (
	"errors"
	"slices"
	"sync"

	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"github.com/sirupsen/logrus"
)

// ErrNoRecipients is returned when asked to speak to nobody
var ErrNoRecipients = errors.New("control: no recipients")

// Speaker is the sender pipeline as seen by the service
type Speaker interface {
	Start(recipients ...transport.Addr)
	Stop()
	Running() bool
	Stats() walkietalkie.SenderStats
}

// Listener is the receiver pipeline as seen by the service
type Listener interface {
	Start()
	Stop()
	Running() bool
	Stats() walkietalkie.ReceiverStats
}

// Service executes the four walkie-talkie commands. Every command is
// idempotent. While the mesh is not ready, start commands are remembered and
// run once SetReady(true) is called; SetReady(false) stops both pipelines
// and keeps the requests for the next time the mesh comes up.
type Service struct {
	identity string
	sender   Speaker
	receiver Listener
	log      *logrus.Entry

	mu         sync.Mutex
	ready      bool
	speaking   bool // speaking was requested
	listening  bool // listening was requested
	recipients []transport.Addr
}

// NewService creates a service for a mesh that is not ready yet
func NewService(identity string, sender Speaker, receiver Listener) *Service {
	return &Service{
		identity: identity,
		sender:   sender,
		receiver: receiver,
		log:      logrus.WithField("component", "control"),
	}
}

// StartSpeaking streams to recipients, now or as soon as the mesh is ready.
// Speaking to the same recipients again is a no-op; other recipients restart
// the sender.
func (s *Service) StartSpeaking(recipients []transport.Addr) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	same := s.speaking && slices.Equal(s.recipients, recipients)
	s.speaking = true
	s.recipients = slices.Clone(recipients)

	if !s.ready {
		s.log.WithField("recipients", len(recipients)).Info("Mesh not ready, speaking deferred")
		return nil
	}
	if same && s.sender.Running() {
		return nil
	}
	s.sender.Start(s.recipients...)
	return nil
}

// StopSpeaking stops the sender and forgets a deferred request
func (s *Service) StopSpeaking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
	s.recipients = nil
	s.sender.Stop()
}

// StartListening starts the receiver, now or as soon as the mesh is ready
func (s *Service) StartListening() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listening = true
	if !s.ready {
		s.log.Info("Mesh not ready, listening deferred")
		return
	}
	if !s.receiver.Running() {
		s.receiver.Start()
	}
}

// StopListening stops the receiver and forgets a deferred request
func (s *Service) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = false
	s.receiver.Stop()
}

// SetReady reports a mesh state change
func (s *Service) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ready == s.ready {
		return
	}
	s.ready = ready
	s.log.WithField("ready", ready).Info("Mesh state changed")

	if !ready {
		s.sender.Stop()
		s.receiver.Stop()
		return
	}

	// execute pending requests
	if s.listening {
		s.receiver.Start()
	}
	if s.speaking {
		s.sender.Start(s.recipients...)
	}
}

// Close stops everything
func (s *Service) Close() {
	s.StopSpeaking()
	s.StopListening()
}

// Status reports the service state and pipeline counters
func (s *Service) Status() protocol.Status {
	s.mu.Lock()
	st := protocol.Status{
		Identity:  s.identity,
		Ready:     s.ready,
		Speaking:  s.speaking && s.ready && s.sender.Running(),
		Listening: s.listening && s.ready && s.receiver.Running(),
	}
	for _, r := range s.recipients {
		st.Recipients = append(st.Recipients, protocol.Recipient{Identity: r.Identity, Port: r.Port})
	}
	s.mu.Unlock()

	ss := s.sender.Stats()
	st.Sender = protocol.SenderStats{
		PacketsSent:      ss.PacketsSent,
		SendErrors:       ss.SendErrors,
		DriftCorrections: ss.DriftCorrections,
	}
	rs := s.receiver.Stats()
	st.Receiver = protocol.ReceiverStats{
		PacketsReceived: rs.PacketsReceived,
		PacketsDropped:  rs.PacketsDropped,
		ReceiveErrors:   rs.ReceiveErrors,
		BytesPlayed:     rs.BytesPlayed,
		ActiveSources:   rs.Mixer.ActiveSources,
		LagCorrections:  rs.Mixer.LagCorrections,
	}
	return st
}
