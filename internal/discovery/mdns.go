// ABOUTME: mDNS discovery of mesh nodes on the local network
// ABOUTME: Advertises this node's identity and resolves peer identities to hosts for the UDP transport
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/meshtalk/meshtalk-go/internal/version"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// ServiceType is the mDNS service advertised by every node
const ServiceType = "_meshtalk._udp"

const identityKey = "id="

// Config holds discovery configuration
type Config struct {
	Identity      string
	Port          int // advertised receiver port
	Domain        string
	QueryInterval time.Duration
	QueryTimeout  time.Duration
}

// Peer describes a discovered node
type Peer struct {
	Identity string
	Host     string
	Port     int
	LastSeen time.Time
}

// Manager advertises this node and tracks its peers. It implements
// transport.Resolver over the peers seen so far.
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	mu    sync.RWMutex
	peers map[string]Peer

	updates chan Peer
}

var _ transport.Resolver = (*Manager)(nil)

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Domain == "" {
		config.Domain = "local"
	}
	if config.QueryInterval <= 0 {
		config.QueryInterval = 5 * time.Second
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		log:     logrus.WithField("component", "discovery"),
		peers:   make(map[string]Peer),
		updates: make(chan Peer, 10),
	}
}

// Advertise announces this node via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := m.service(ips)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"identity": m.config.Identity,
		"port":     m.config.Port,
		"service":  ServiceType,
	}).Info("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

func (m *Manager) service(ips []net.IP) (*mdns.MDNSService, error) {
	return mdns.NewMDNSService(
		m.config.Identity,
		ServiceType,
		m.config.Domain+".",
		"",
		m.config.Port,
		ips,
		[]string{identityKey + m.config.Identity, "v=" + version.Version},
	)
}

// Browse continuously searches for other nodes until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				m.handleEntry(entry)
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Domain = m.config.Domain
		params.Timeout = m.config.QueryTimeout
		params.Entries = entries

		if err := mdns.Query(params); err != nil {
			m.log.WithError(err).Warn("mDNS query failed")
		}
		close(entries)
		<-done

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.config.QueryInterval):
		}
	}
}

// handleEntry records a discovered node
func (m *Manager) handleEntry(entry *mdns.ServiceEntry) {
	identity := entryIdentity(entry)
	if identity == "" || identity == m.config.Identity {
		return
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return
	}

	peer := Peer{
		Identity: identity,
		Host:     host,
		Port:     entry.Port,
		LastSeen: time.Now(),
	}

	m.mu.Lock()
	prev, known := m.peers[identity]
	m.peers[identity] = peer
	m.mu.Unlock()

	if known && prev.Host == peer.Host && prev.Port == peer.Port {
		return
	}

	m.log.WithFields(logrus.Fields{
		"identity": identity,
		"host":     host,
		"port":     peer.Port,
	}).Info("Discovered peer")

	select {
	case m.updates <- peer:
	default:
	}
}

// entryIdentity reads the identity from the TXT record, falling back to the
// instance label of the service name
func entryIdentity(entry *mdns.ServiceEntry) string {
	for _, field := range entry.InfoFields {
		if strings.HasPrefix(field, identityKey) {
			return strings.TrimPrefix(field, identityKey)
		}
	}
	name, _, found := strings.Cut(entry.Name, "."+ServiceType)
	if !found {
		return ""
	}
	return strings.ReplaceAll(name, "\\ ", " ")
}

// Resolve returns the host last seen announcing identity
func (m *Manager) Resolve(identity string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peer, ok := m.peers[identity]
	if !ok {
		return "", fmt.Errorf("%w: %s not discovered", transport.ErrUnknownPeer, identity)
	}
	return peer.Host, nil
}

// Identify returns the identity announced by ip
func (m *Manager) Identify(ip net.IP) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, peer := range m.peers {
		if peerIP := net.ParseIP(peer.Host); peerIP != nil && peerIP.Equal(ip) {
			return peer.Identity, true
		}
	}
	return "", false
}

// Peers returns every node discovered so far
func (m *Manager) Peers() []Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	return peers
}

// Updates delivers newly discovered or moved peers
func (m *Manager) Updates() <-chan Peer {
	return m.updates
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
