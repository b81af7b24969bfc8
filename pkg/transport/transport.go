// ABOUTME: Mesh transport abstraction
// ABOUTME: Datagram endpoints bound to (identity, port) addresses
package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrClosed is returned by operations on a closed endpoint or transport
	ErrClosed = errors.New("transport: closed")
	// ErrPortInUse is returned by Open when the port is already bound
	ErrPortInUse = errors.New("transport: port in use")
	// ErrUnknownPeer is returned by Send when the recipient cannot be resolved
	ErrUnknownPeer = errors.New("transport: unknown peer")
)

// Addr is a mesh socket address: a node identity and a port on that node
type Addr struct {
	Identity string
	Port     int
}

func (a Addr) String() string {
	return a.Identity + ":" + strconv.Itoa(a.Port)
}

// ParseAddr parses "identity:port"; a missing port yields defaultPort
func ParseAddr(s string, defaultPort int) (Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Addr{}, fmt.Errorf("empty address")
	}
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Addr{Identity: s, Port: defaultPort}, nil
	}
	port, err := strconv.Atoi(s[idx+1:])
	if err != nil || port <= 0 || port > 65535 {
		return Addr{}, fmt.Errorf("invalid port in address %q", s)
	}
	if idx == 0 {
		return Addr{}, fmt.Errorf("missing identity in address %q", s)
	}
	return Addr{Identity: s[:idx], Port: port}, nil
}

// Endpoint is an open datagram socket on the mesh
type Endpoint interface {
	// Send transmits one datagram. Delivery is best effort.
	Send(payload []byte, to Addr) error

	// Receive blocks until a datagram arrives and copies it into buf.
	// It returns ErrClosed once the endpoint is closed, including when the
	// close happens while Receive is blocked.
	Receive(buf []byte) (n int, from Addr, err error)

	// Close releases the port and unblocks pending receives. Idempotent.
	Close() error

	// LocalAddr returns the address this endpoint is bound to
	LocalAddr() Addr
}

// Transport opens endpoints on the local node
type Transport interface {
	// Open binds port on the local node
	Open(port int) (Endpoint, error)
}
