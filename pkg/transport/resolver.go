// ABOUTME: Identity to host resolution for network transports
// ABOUTME: Static tables and resolver chains
package transport

import (
	"fmt"
	"net"
	"sync"
)

// Resolver maps mesh identities to network hosts and back
type Resolver interface {
	// Resolve returns the host (name or IP) of identity
	Resolve(identity string) (string, error)
	// Identify returns the identity announced by ip, if known
	Identify(ip net.IP) (string, bool)
}

// StaticResolver is a fixed identity to host table
type StaticResolver struct {
	mu    sync.RWMutex
	hosts map[string]string
}

// NewStaticResolver creates a resolver from an identity to host map
func NewStaticResolver(hosts map[string]string) *StaticResolver {
	r := &StaticResolver{hosts: make(map[string]string, len(hosts))}
	for id, host := range hosts {
		r.hosts[id] = host
	}
	return r
}

// Set adds or replaces an entry
func (r *StaticResolver) Set(identity, host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[identity] = host
}

func (r *StaticResolver) Resolve(identity string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	host, ok := r.hosts[identity]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, identity)
	}
	return host, nil
}

func (r *StaticResolver) Identify(ip net.IP) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, host := range r.hosts {
		if hostIP := net.ParseIP(host); hostIP != nil && hostIP.Equal(ip) {
			return id, true
		}
	}
	return "", false
}

// Chain tries resolvers in order
type Chain []Resolver

func (c Chain) Resolve(identity string) (string, error) {
	for _, r := range c {
		if host, err := r.Resolve(identity); err == nil {
			return host, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownPeer, identity)
}

func (c Chain) Identify(ip net.IP) (string, bool) {
	for _, r := range c {
		if id, ok := r.Identify(ip); ok {
			return id, true
		}
	}
	return "", false
}
