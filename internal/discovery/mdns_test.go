// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests service records, entry handling and identity resolution
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{Identity: "alice", Port: 4444})
	defer mgr.Stop()

	assert.Equal(t, "local", mgr.config.Domain)
	assert.Positive(t, mgr.config.QueryInterval)
	assert.Positive(t, mgr.config.QueryTimeout)
	assert.Empty(t, mgr.Peers())
}

func TestServiceRecord(t *testing.T) {
	mgr := NewManager(Config{Identity: "alice", Port: 4444})
	defer mgr.Stop()

	svc, err := mgr.service([]net.IP{net.ParseIP("192.168.1.10")})
	require.NoError(t, err)
	assert.Equal(t, "alice", svc.Instance)
	assert.Equal(t, ServiceType, svc.Service)
	assert.Equal(t, 4444, svc.Port)
	assert.Contains(t, svc.TXT, "id=alice")
}

func TestHandleEntryResolves(t *testing.T) {
	mgr := NewManager(Config{Identity: "alice"})
	defer mgr.Stop()

	mgr.handleEntry(&mdns.ServiceEntry{
		Name:       "bob._meshtalk._udp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       4444,
		InfoFields: []string{"id=bob-1234", "v=0.3.0"},
	})

	host, err := mgr.Resolve("bob-1234")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", host)

	id, ok := mgr.Identify(net.ParseIP("192.168.1.20"))
	assert.True(t, ok)
	assert.Equal(t, "bob-1234", id)

	select {
	case peer := <-mgr.Updates():
		assert.Equal(t, "bob-1234", peer.Identity)
		assert.Equal(t, 4444, peer.Port)
	default:
		t.Fatal("expected a peer update")
	}

	// the same announcement again is not a new update
	mgr.handleEntry(&mdns.ServiceEntry{
		Name:       "bob._meshtalk._udp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       4444,
		InfoFields: []string{"id=bob-1234"},
	})
	select {
	case <-mgr.Updates():
		t.Fatal("unexpected update for an unchanged peer")
	default:
	}
	assert.Len(t, mgr.Peers(), 1)
}

func TestHandleEntryIgnoresSelfAndAddressless(t *testing.T) {
	mgr := NewManager(Config{Identity: "alice"})
	defer mgr.Stop()

	mgr.handleEntry(&mdns.ServiceEntry{
		Name:       "alice._meshtalk._udp.local.",
		AddrV4:     net.ParseIP("192.168.1.10"),
		InfoFields: []string{"id=alice"},
	})
	mgr.handleEntry(&mdns.ServiceEntry{
		Name:       "carol._meshtalk._udp.local.",
		InfoFields: []string{"id=carol"},
	})

	assert.Empty(t, mgr.Peers())
	_, err := mgr.Resolve("alice")
	assert.ErrorIs(t, err, transport.ErrUnknownPeer)
	_, ok := mgr.Identify(net.ParseIP("192.168.1.10"))
	assert.False(t, ok)
}

func TestEntryIdentityFallsBackToInstance(t *testing.T) {
	assert.Equal(t, "dave", entryIdentity(&mdns.ServiceEntry{Name: "dave._meshtalk._udp.local."}))
	assert.Equal(t, "erin", entryIdentity(&mdns.ServiceEntry{
		Name:       "ignored._meshtalk._udp.local.",
		InfoFields: []string{"v=1", "id=erin"},
	}))
	assert.Empty(t, entryIdentity(&mdns.ServiceEntry{Name: "printer._ipp._tcp.local."}))
}

func TestManagerAsResolverChain(t *testing.T) {
	mgr := NewManager(Config{Identity: "alice"})
	defer mgr.Stop()
	mgr.handleEntry(&mdns.ServiceEntry{
		Name:   "bob._meshtalk._udp.local.",
		AddrV6: net.ParseIP("fe80::1"),
	})

	chain := transport.Chain{transport.NewStaticResolver(map[string]string{"carol": "10.0.0.3"}), mgr}

	host, err := chain.Resolve("bob")
	require.NoError(t, err)
	assert.Equal(t, "fe80::1", host)

	host, err = chain.Resolve("carol")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", host)
}
