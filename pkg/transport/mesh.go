// ABOUTME: In-process mesh transport with fault injection
// ABOUTME: Connects many node identities through memory with configurable loss, delay and jitter
package transport

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const meshQueueSize = 512

// Conditions describe the link quality applied to every datagram
type Conditions struct {
	LossRate float64       // probability in [0, 1] that a datagram is dropped
	Delay    time.Duration // fixed one-way latency
	Jitter   time.Duration // extra latency drawn uniformly from [0, Jitter)
}

// MeshStats counts datagrams crossing the mesh
type MeshStats struct {
	Sent      uint64
	Delivered uint64
	Lost      uint64 // dropped by injected loss
	Unrouted  uint64 // no endpoint bound at the destination
	Overflow  uint64 // destination queue full
}

// Mesh is an in-memory network shared by any number of nodes
type Mesh struct {
	mu         sync.Mutex
	endpoints  map[Addr]*meshEndpoint
	conditions Conditions
	rng        *rand.Rand
	closed     bool

	sent, delivered, lost, unrouted, overflow atomic.Uint64
}

// NewMesh creates an empty mesh; seed makes injected faults reproducible
func NewMesh(seed int64) *Mesh {
	return &Mesh{
		endpoints: make(map[Addr]*meshEndpoint),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// SetConditions changes the link quality for subsequent datagrams
func (m *Mesh) SetConditions(c Conditions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions = c
}

// Node returns the transport of the node with the given identity
func (m *Mesh) Node(identity string) Transport {
	return &meshNode{mesh: m, identity: identity}
}

// Stats returns a snapshot of the mesh counters
func (m *Mesh) Stats() MeshStats {
	return MeshStats{
		Sent:      m.sent.Load(),
		Delivered: m.delivered.Load(),
		Lost:      m.lost.Load(),
		Unrouted:  m.unrouted.Load(),
		Overflow:  m.overflow.Load(),
	}
}

// Close closes every endpoint; later Opens fail with ErrClosed
func (m *Mesh) Close() error {
	m.mu.Lock()
	m.closed = true
	endpoints := make([]*meshEndpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		endpoints = append(endpoints, ep)
	}
	m.mu.Unlock()

	for _, ep := range endpoints {
		ep.Close()
	}
	return nil
}

func (m *Mesh) open(addr Addr) (*meshEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.endpoints[addr]; ok {
		return nil, ErrPortInUse
	}

	ep := &meshEndpoint{
		mesh:  m,
		addr:  addr,
		queue: make(chan datagram, meshQueueSize),
		done:  make(chan struct{}),
	}
	m.endpoints[addr] = ep
	return ep, nil
}

func (m *Mesh) release(ep *meshEndpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endpoints[ep.addr] == ep {
		delete(m.endpoints, ep.addr)
	}
}

// route applies the link conditions and schedules delivery
func (m *Mesh) route(d datagram, to Addr) {
	m.sent.Add(1)

	m.mu.Lock()
	c := m.conditions
	drop := c.LossRate > 0 && m.rng.Float64() < c.LossRate
	latency := c.Delay
	if c.Jitter > 0 {
		latency += time.Duration(m.rng.Int63n(int64(c.Jitter)))
	}
	m.mu.Unlock()

	if drop {
		m.lost.Add(1)
		return
	}

	if latency <= 0 {
		m.deliver(d, to)
		return
	}
	time.AfterFunc(latency, func() { m.deliver(d, to) })
}

func (m *Mesh) deliver(d datagram, to Addr) {
	m.mu.Lock()
	ep, ok := m.endpoints[to]
	m.mu.Unlock()

	if !ok {
		m.unrouted.Add(1)
		return
	}

	select {
	case ep.queue <- d:
		m.delivered.Add(1)
	case <-ep.done:
		m.unrouted.Add(1)
	default:
		m.overflow.Add(1)
		logrus.WithFields(logrus.Fields{
			"component": "mesh",
			"to":        to.String(),
		}).Debug("Receive queue full, dropping datagram")
	}
}

type datagram struct {
	from    Addr
	payload []byte
}

type meshNode struct {
	mesh     *Mesh
	identity string
}

func (n *meshNode) Open(port int) (Endpoint, error) {
	return n.mesh.open(Addr{Identity: n.identity, Port: port})
}

type meshEndpoint struct {
	mesh      *Mesh
	addr      Addr
	queue     chan datagram
	done      chan struct{}
	closeOnce sync.Once
}

func (e *meshEndpoint) Send(payload []byte, to Addr) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	p := make([]byte, len(payload))
	copy(p, payload)
	e.mesh.route(datagram{from: e.addr, payload: p}, to)
	return nil
}

func (e *meshEndpoint) Receive(buf []byte) (int, Addr, error) {
	select {
	case <-e.done:
		return 0, Addr{}, ErrClosed
	default:
	}

	select {
	case d := <-e.queue:
		return copy(buf, d.payload), d.from, nil
	case <-e.done:
		return 0, Addr{}, ErrClosed
	}
}

func (e *meshEndpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.mesh.release(e)
	})
	return nil
}

func (e *meshEndpoint) LocalAddr() Addr {
	return e.addr
}
