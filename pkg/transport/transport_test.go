// ABOUTME: Tests for mesh and UDP transports
// ABOUTME: Covers delivery, port binding, close semantics and loss injection
package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		input    string
		expected Addr
		wantErr  bool
	}{
		{"alice:5555", Addr{"alice", 5555}, false},
		{"alice", Addr{"alice", 4444}, false},
		{"fe80::1:4444", Addr{"fe80::1", 4444}, false},
		{"alice:notaport", Addr{}, true},
		{":4444", Addr{}, true},
		{"", Addr{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			addr, err := ParseAddr(tt.input, 4444)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr)
		})
	}
}

func TestMeshDelivery(t *testing.T) {
	mesh := NewMesh(1)
	defer mesh.Close()

	a, err := mesh.Node("alice").Open(5555)
	require.NoError(t, err)
	b, err := mesh.Node("bob").Open(4444)
	require.NoError(t, err)

	require.NoError(t, a.Send([]byte("hello"), Addr{"bob", 4444}))

	buf := make([]byte, 64)
	n, from, err := b.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, Addr{"alice", 5555}, from)
	assert.Equal(t, Addr{"bob", 4444}, b.LocalAddr())
}

func TestMeshPortInUse(t *testing.T) {
	mesh := NewMesh(1)
	defer mesh.Close()

	ep, err := mesh.Node("alice").Open(4444)
	require.NoError(t, err)

	_, err = mesh.Node("alice").Open(4444)
	assert.True(t, errors.Is(err, ErrPortInUse))

	// same port on another node is fine
	_, err = mesh.Node("bob").Open(4444)
	assert.NoError(t, err)

	// port is released on close
	require.NoError(t, ep.Close())
	_, err = mesh.Node("alice").Open(4444)
	assert.NoError(t, err)
}

func TestMeshCloseUnblocksReceive(t *testing.T) {
	mesh := NewMesh(1)
	ep, err := mesh.Node("alice").Open(4444)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := ep.Receive(make([]byte, 16))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("receive not unblocked by close")
	}

	assert.True(t, errors.Is(ep.Send([]byte{1}, Addr{"bob", 1}), ErrClosed))
}

func TestMeshClosed(t *testing.T) {
	mesh := NewMesh(1)
	require.NoError(t, mesh.Close())

	_, err := mesh.Node("alice").Open(4444)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestMeshLossRate(t *testing.T) {
	mesh := NewMesh(42)
	defer mesh.Close()
	mesh.SetConditions(Conditions{LossRate: 0.2})

	a, err := mesh.Node("alice").Open(1)
	require.NoError(t, err)
	_, err = mesh.Node("bob").Open(2)
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		require.NoError(t, a.Send([]byte{byte(i)}, Addr{"bob", 2}))
	}

	stats := mesh.Stats()
	assert.Equal(t, uint64(400), stats.Sent)
	assert.Equal(t, stats.Sent, stats.Lost+stats.Delivered)
	assert.InDelta(t, 80, float64(stats.Lost), 30)
}

func TestMeshUnroutedIsSilent(t *testing.T) {
	mesh := NewMesh(1)
	defer mesh.Close()

	a, err := mesh.Node("alice").Open(1)
	require.NoError(t, err)

	assert.NoError(t, a.Send([]byte{1}, Addr{"nobody", 1}))
	assert.Equal(t, uint64(1), mesh.Stats().Unrouted)
}

func TestMeshDelay(t *testing.T) {
	mesh := NewMesh(1)
	defer mesh.Close()
	mesh.SetConditions(Conditions{Delay: 30 * time.Millisecond, Jitter: 5 * time.Millisecond})

	a, err := mesh.Node("alice").Open(1)
	require.NoError(t, err)
	b, err := mesh.Node("bob").Open(2)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, a.Send([]byte{1}, Addr{"bob", 2}))
	_, _, err = b.Receive(make([]byte, 1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]string{"alice": "127.0.0.1"})

	host, err := r.Resolve("alice")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	_, err = r.Resolve("bob")
	assert.True(t, errors.Is(err, ErrUnknownPeer))

	id, ok := r.Identify(net.ParseIP("127.0.0.1"))
	assert.True(t, ok)
	assert.Equal(t, "alice", id)

	chain := Chain{NewStaticResolver(nil), r}
	host, err = chain.Resolve("alice")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
}

func TestUDPLoopback(t *testing.T) {
	resolver := NewStaticResolver(map[string]string{"self": "127.0.0.1"})
	udp := NewUDP("self", "127.0.0.1", resolver)

	rx, err := udp.Open(0)
	require.NoError(t, err)
	defer rx.Close()
	tx, err := udp.Open(0)
	require.NoError(t, err)
	defer tx.Close()

	require.NoError(t, tx.Send([]byte("ping"), rx.LocalAddr()))

	buf := make([]byte, 16)
	n, from, err := rx.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.Equal(t, tx.LocalAddr(), from)

	_, err = udp.Open(rx.LocalAddr().Port)
	assert.True(t, errors.Is(err, ErrPortInUse))

	assert.True(t, errors.Is(tx.Send([]byte{1}, Addr{"stranger", 1}), ErrUnknownPeer))
}

func TestUDPCloseUnblocksReceive(t *testing.T) {
	udp := NewUDP("self", "127.0.0.1", NewStaticResolver(nil))
	ep, err := udp.Open(0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := ep.Receive(make([]byte, 16))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("receive not unblocked by close")
	}
}

func TestUDPReresolvesAfterSendError(t *testing.T) {
	resolver := NewStaticResolver(map[string]string{"peer": "::1"})
	udp := NewUDP("self", "127.0.0.1", resolver)

	rx, err := udp.Open(0)
	require.NoError(t, err)
	defer rx.Close()
	tx, err := udp.Open(0)
	require.NoError(t, err)
	defer tx.Close()

	to := Addr{Identity: "peer", Port: rx.LocalAddr().Port}

	// an IPv4 socket cannot reach the stale IPv6 address
	require.Error(t, tx.Send([]byte("lost"), to))

	resolver.Set("peer", "127.0.0.1")
	require.NoError(t, tx.Send([]byte("found"), to))

	buf := make([]byte, 16)
	n, _, err := rx.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "found", string(buf[:n]))
}
