// ABOUTME: Websocket control endpoint and HTTP server
// ABOUTME: Decodes JSON commands, runs them on the service and replies with the resulting status
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Path is where the control websocket is served
const Path = "/control"

// CommandRecorder counts executed commands
type CommandRecorder interface {
	RecordCommand(commandType string, err error)
}

// Handler serves the control websocket
type Handler struct {
	service     *Service
	recorder    CommandRecorder
	defaultPort int
	upgrader    websocket.Upgrader
	log         *logrus.Entry
}

// NewHandler creates a handler; recorder may be nil. Recipients without a
// port are sent to defaultPort.
func NewHandler(service *Service, recorder CommandRecorder, defaultPort int) *Handler {
	return &Handler{
		service:     service,
		recorder:    recorder,
		defaultPort: defaultPort,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow non-browser clients (no Origin header) and local pages only
				origin := r.Header.Get("Origin")
				return origin == "" || origin == "http://localhost" || origin == "http://127.0.0.1"
			},
		},
		log: logrus.WithField("component", "control"),
	}
}

// ServeHTTP upgrades the connection and serves commands until it closes
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	h.log.WithField("remote", r.RemoteAddr).Debug("Control connection opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.WithError(err).Debug("Control connection read error")
			}
			return
		}

		reply := h.handle(data)
		if err := conn.WriteJSON(reply); err != nil {
			h.log.WithError(err).Warn("Cannot write control reply")
			return
		}
	}
}

// handle runs one encoded command and builds the reply message
func (h *Handler) handle(data []byte) protocol.Message {
	var msg protocol.Message
	var err error
	if err = json.Unmarshal(data, &msg); err != nil {
		err = fmt.Errorf("invalid message: %w", err)
	} else {
		err = h.execute(msg)
	}

	if h.recorder != nil {
		h.recorder.RecordCommand(commandLabel(msg.Type), err)
	}

	h.log.WithFields(logrus.Fields{
		"type": msg.Type,
		"id":   msg.ID,
		"ok":   err == nil,
	}).Info("Control command")

	reply := protocol.Reply{OK: err == nil, Status: h.service.Status()}
	if err != nil {
		reply.Error = err.Error()
	}
	return protocol.Message{Type: protocol.TypeReply, ID: msg.ID, Payload: reply}
}

func (h *Handler) execute(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeStartSpeaking:
		var cmd protocol.StartSpeaking
		if err := decodePayload(msg.Payload, &cmd); err != nil {
			return err
		}
		recipients := make([]transport.Addr, 0, len(cmd.Recipients))
		for _, r := range cmd.Recipients {
			if r.Identity == "" {
				return fmt.Errorf("recipient without identity")
			}
			port := r.Port
			if port == 0 {
				port = h.defaultPort
			}
			recipients = append(recipients, transport.Addr{Identity: r.Identity, Port: port})
		}
		return h.service.StartSpeaking(recipients)
	case protocol.TypeStopSpeaking:
		h.service.StopSpeaking()
	case protocol.TypeStartListening:
		h.service.StartListening()
	case protocol.TypeStopListening:
		h.service.StopListening()
	case protocol.TypeStatus:
	default:
		return fmt.Errorf("unknown command: %q", msg.Type)
	}
	return nil
}

// commandLabel maps a command type to a bounded set of metric labels
func commandLabel(commandType string) string {
	switch commandType {
	case protocol.TypeStartSpeaking, protocol.TypeStopSpeaking,
		protocol.TypeStartListening, protocol.TypeStopListening, protocol.TypeStatus:
		return commandType
	default:
		return "unknown"
	}
}

// decodePayload converts a generically decoded payload into out
func decodePayload(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// Server serves the control websocket and any extra handlers (such as metrics)
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	log        *logrus.Entry
}

// NewServer creates a server listening on addr with the control handler at Path
func NewServer(addr string, handler *Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle(Path, handler)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		mux: mux,
		log: logrus.WithField("component", "control"),
	}
}

// Handle registers an extra handler
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("control server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("Control server listening")

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("Control server shutdown error")
	}
	return nil
}
