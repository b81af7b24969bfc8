// ABOUTME: WebSocket client for the control endpoint
// ABOUTME: Sends commands and waits for the matching reply, used by the ctl subcommand
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
)

// Client is a connection to a node's control endpoint
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to the control endpoint at addr (host:port)
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Do sends one command and returns its reply. A reply with OK false is
// returned together with an error carrying its message.
func (c *Client) Do(ctx context.Context, commandType string, payload interface{}) (protocol.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := protocol.Message{Type: commandType, ID: uuid.NewString(), Payload: payload}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	c.conn.SetWriteDeadline(deadline)
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{}) // Clear deadline

	if err := c.conn.WriteJSON(msg); err != nil {
		return protocol.Reply{}, fmt.Errorf("failed to send %s: %w", commandType, err)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return protocol.Reply{}, fmt.Errorf("failed to read reply: %w", err)
		}

		var resp protocol.Message
		if err := json.Unmarshal(data, &resp); err != nil {
			return protocol.Reply{}, fmt.Errorf("failed to parse reply: %w", err)
		}
		if resp.Type != protocol.TypeReply || resp.ID != msg.ID {
			continue
		}

		var reply protocol.Reply
		if err := decodePayload(resp.Payload, &reply); err != nil {
			return protocol.Reply{}, err
		}
		if !reply.OK {
			return reply, fmt.Errorf("%s: %s", commandType, reply.Error)
		}
		return reply, nil
	}
}

// StartSpeaking asks the node to speak to recipients
func (c *Client) StartSpeaking(ctx context.Context, recipients ...transport.Addr) (protocol.Reply, error) {
	cmd := protocol.StartSpeaking{}
	for _, r := range recipients {
		cmd.Recipients = append(cmd.Recipients, protocol.Recipient{Identity: r.Identity, Port: r.Port})
	}
	return c.Do(ctx, protocol.TypeStartSpeaking, cmd)
}

// StopSpeaking asks the node to stop speaking
func (c *Client) StopSpeaking(ctx context.Context) (protocol.Reply, error) {
	return c.Do(ctx, protocol.TypeStopSpeaking, nil)
}

// StartListening asks the node to start listening
func (c *Client) StartListening(ctx context.Context) (protocol.Reply, error) {
	return c.Do(ctx, protocol.TypeStartListening, nil)
}

// StopListening asks the node to stop listening
func (c *Client) StopListening(ctx context.Context) (protocol.Reply, error) {
	return c.Do(ctx, protocol.TypeStopListening, nil)
}

// Status fetches the node status
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	reply, err := c.Do(ctx, protocol.TypeStatus, nil)
	return reply.Status, err
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
