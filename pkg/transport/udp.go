// ABOUTME: UDP mesh transport
// ABOUTME: Maps each mesh port to a UDP port and resolves identities to hosts
package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

// UDP carries mesh datagrams over UDP/IP. Mesh port P is UDP port P on
// every node.
type UDP struct {
	identity string
	bindHost string
	resolver Resolver
}

// NewUDP creates the UDP transport of node identity, binding on bindHost
// ("" for all interfaces)
func NewUDP(identity, bindHost string, resolver Resolver) *UDP {
	return &UDP{identity: identity, bindHost: bindHost, resolver: resolver}
}

// Open binds a UDP socket on port
func (u *UDP) Open(port int) (Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(u.bindHost, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: udp %d", ErrPortInUse, port)
		}
		return nil, fmt.Errorf("listen udp %d: %w", port, err)
	}

	logrus.WithFields(logrus.Fields{
		"component": "udp",
		"local":     conn.LocalAddr().String(),
	}).Debug("Endpoint opened")

	return &udpEndpoint{
		conn:     conn,
		resolver: u.resolver,
		local:    Addr{Identity: u.identity, Port: conn.LocalAddr().(*net.UDPAddr).Port},
	}, nil
}

type udpEndpoint struct {
	conn     *net.UDPConn
	resolver Resolver
	local    Addr

	mu    sync.Mutex
	cache map[Addr]*net.UDPAddr
}

func (e *udpEndpoint) Send(payload []byte, to Addr) error {
	raddr, err := e.lookup(to)
	if err != nil {
		return err
	}
	if _, err := e.conn.WriteToUDP(payload, raddr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		// the peer may have moved; resolve it again on the next send
		e.forget(to)
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// forget drops the cached address of to
func (e *udpEndpoint) forget(to Addr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, to)
}

func (e *udpEndpoint) lookup(to Addr) (*net.UDPAddr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if raddr, ok := e.cache[to]; ok {
		return raddr, nil
	}

	host, err := e.resolver.Resolve(to.Identity)
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(to.Port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownPeer, to.Identity, err)
	}

	if e.cache == nil {
		e.cache = make(map[Addr]*net.UDPAddr)
	}
	e.cache[to] = raddr
	return raddr, nil
}

func (e *udpEndpoint) Receive(buf []byte) (int, Addr, error) {
	n, raddr, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return 0, Addr{}, ErrClosed
		}
		return 0, Addr{}, fmt.Errorf("receive: %w", err)
	}

	identity, ok := e.resolver.Identify(raddr.IP)
	if !ok {
		identity = raddr.IP.String()
	}
	return n, Addr{Identity: identity, Port: raddr.Port}, nil
}

func (e *udpEndpoint) Close() error {
	if err := e.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (e *udpEndpoint) LocalAddr() Addr {
	return e.local
}
