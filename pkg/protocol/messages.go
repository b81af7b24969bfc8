// ABOUTME: Control surface message type definitions
// ABOUTME: Defines JSON commands and replies exchanged over the control websocket
package protocol

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Control message types
const (
	TypeStartSpeaking  = "start-speaking"
	TypeStopSpeaking   = "stop-speaking"
	TypeStartListening = "start-listening"
	TypeStopListening  = "stop-listening"
	TypeStatus         = "status"
	TypeReply          = "reply"
)

// Recipient addresses a mesh socket
type Recipient struct {
	Identity string `json:"identity"`
	Port     int    `json:"port,omitempty"` // 0 means the default receiver port
}

// StartSpeaking is the payload of a start-speaking command
type StartSpeaking struct {
	Recipients []Recipient `json:"recipients"`
}

// Reply answers every command with the resulting state
type Reply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status Status `json:"status"`
}

// Status reports the state of both pipelines
type Status struct {
	Identity   string        `json:"identity"`
	Ready      bool          `json:"ready"`
	Speaking   bool          `json:"speaking"`
	Listening  bool          `json:"listening"`
	Recipients []Recipient   `json:"recipients,omitempty"`
	Sender     SenderStats   `json:"sender"`
	Receiver   ReceiverStats `json:"receiver"`
}

// SenderStats mirrors the sender counters
type SenderStats struct {
	PacketsSent      uint64 `json:"packets_sent"`
	SendErrors       uint64 `json:"send_errors"`
	DriftCorrections uint64 `json:"drift_corrections"`
}

// ReceiverStats mirrors the receiver and mixer counters
type ReceiverStats struct {
	PacketsReceived uint64 `json:"packets_received"`
	PacketsDropped  uint64 `json:"packets_dropped"`
	ReceiveErrors   uint64 `json:"receive_errors"`
	BytesPlayed     uint64 `json:"bytes_played"`
	ActiveSources   int    `json:"active_sources"`
	LagCorrections  uint64 `json:"lag_corrections"`
}
