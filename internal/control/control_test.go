// ABOUTME: Tests for the control service, websocket handler and client
// ABOUTME: Uses fake pipelines to check readiness gating and the command round trip
package control

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meshtalk/meshtalk-go/pkg/mixer"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpeaker struct {
	mu         sync.Mutex
	running    bool
	starts     int
	recipients []transport.Addr
}

func (f *fakeSpeaker) Start(recipients ...transport.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
	f.recipients = recipients
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeSpeaker) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSpeaker) Recipients() []transport.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients
}

func (f *fakeSpeaker) Stats() walkietalkie.SenderStats {
	return walkietalkie.SenderStats{PacketsSent: 12, SendErrors: 1}
}

type fakeListener struct {
	mu      sync.Mutex
	running bool
	starts  int
}

func (f *fakeListener) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
}

func (f *fakeListener) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeListener) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeListener) Stats() walkietalkie.ReceiverStats {
	return walkietalkie.ReceiverStats{
		PacketsReceived: 30,
		PacketsDropped:  2,
		Mixer:           mixer.Stats{ActiveSources: 1},
	}
}

func newTestService() (*Service, *fakeSpeaker, *fakeListener) {
	sp := &fakeSpeaker{}
	ls := &fakeListener{}
	return NewService("alice", sp, ls), sp, ls
}

var bob = transport.Addr{Identity: "bob", Port: 4444}

func TestStartDeferredUntilReady(t *testing.T) {
	svc, sp, ls := newTestService()

	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob}))
	svc.StartListening()
	assert.False(t, sp.Running())
	assert.False(t, ls.Running())

	svc.SetReady(true)
	assert.True(t, sp.Running())
	assert.True(t, ls.Running())
	assert.Equal(t, []transport.Addr{bob}, sp.recipients)
}

func TestStopForgetsDeferredRequest(t *testing.T) {
	svc, sp, ls := newTestService()

	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob}))
	svc.StartListening()
	svc.StopSpeaking()
	svc.StopListening()
	svc.SetReady(true)

	assert.False(t, sp.Running())
	assert.False(t, ls.Running())
}

func TestCommandsAreIdempotent(t *testing.T) {
	svc, sp, ls := newTestService()
	svc.SetReady(true)

	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob}))
	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob}))
	svc.StartListening()
	svc.StartListening()
	assert.Equal(t, 1, sp.starts)
	assert.Equal(t, 1, ls.starts)

	// new recipients restart the sender
	carol := transport.Addr{Identity: "carol", Port: 4444}
	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob, carol}))
	assert.Equal(t, 2, sp.starts)
	assert.Equal(t, []transport.Addr{bob, carol}, sp.recipients)

	svc.StopSpeaking()
	svc.StopSpeaking()
	svc.StopListening()
	svc.StopListening()
	assert.False(t, sp.Running())
	assert.False(t, ls.Running())
}

func TestStartSpeakingNeedsRecipients(t *testing.T) {
	svc, sp, _ := newTestService()
	svc.SetReady(true)

	assert.ErrorIs(t, svc.StartSpeaking(nil), ErrNoRecipients)
	assert.False(t, sp.Running())
}

func TestMeshDownStopsAndResumes(t *testing.T) {
	svc, sp, ls := newTestService()
	svc.SetReady(true)
	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob}))
	svc.StartListening()

	svc.SetReady(false)
	assert.False(t, sp.Running())
	assert.False(t, ls.Running())
	assert.False(t, svc.Status().Speaking)

	svc.SetReady(true)
	assert.True(t, sp.Running())
	assert.True(t, ls.Running())
	assert.Equal(t, 2, sp.starts)
}

func TestStatus(t *testing.T) {
	svc, _, _ := newTestService()
	svc.SetReady(true)
	require.NoError(t, svc.StartSpeaking([]transport.Addr{bob}))

	st := svc.Status()
	assert.Equal(t, "alice", st.Identity)
	assert.True(t, st.Ready)
	assert.True(t, st.Speaking)
	assert.False(t, st.Listening)
	assert.Equal(t, []protocol.Recipient{{Identity: "bob", Port: 4444}}, st.Recipients)
	assert.Equal(t, uint64(12), st.Sender.PacketsSent)
	assert.Equal(t, uint64(2), st.Receiver.PacketsDropped)
	assert.Equal(t, 1, st.Receiver.ActiveSources)
}

type recordedCommand struct {
	commandType string
	failed      bool
}

type fakeRecorder struct {
	mu       sync.Mutex
	commands []recordedCommand
}

func (r *fakeRecorder) RecordCommand(commandType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, recordedCommand{commandType, err != nil})
}

func startControl(t *testing.T) (*Client, *fakeSpeaker, *fakeListener, *fakeRecorder) {
	t.Helper()
	svc, sp, ls := newTestService()
	svc.SetReady(true)
	rec := &fakeRecorder{}

	srv := httptest.NewServer(NewHandler(svc, rec, 4444))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, sp, ls, rec
}

func TestClientRoundTrip(t *testing.T) {
	client, sp, ls, rec := startControl(t)
	ctx := context.Background()

	reply, err := client.StartSpeaking(ctx, transport.Addr{Identity: "bob"})
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.True(t, reply.Status.Speaking)
	assert.True(t, sp.Running())
	// missing port filled with the default
	assert.Equal(t, []transport.Addr{bob}, sp.Recipients())

	_, err = client.StartListening(ctx)
	require.NoError(t, err)
	assert.True(t, ls.Running())

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Identity)
	assert.True(t, st.Listening)
	assert.Equal(t, uint64(30), st.Receiver.PacketsReceived)

	_, err = client.StopSpeaking(ctx)
	require.NoError(t, err)
	_, err = client.StopListening(ctx)
	require.NoError(t, err)
	assert.False(t, sp.Running())
	assert.False(t, ls.Running())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.commands, 5)
	assert.Equal(t, protocol.TypeStartSpeaking, rec.commands[0].commandType)
	assert.False(t, rec.commands[0].failed)
}

func TestClientErrors(t *testing.T) {
	client, sp, _, rec := startControl(t)
	ctx := context.Background()

	reply, err := client.StartSpeaking(ctx)
	require.Error(t, err)
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, ErrNoRecipients.Error())
	assert.False(t, sp.Running())

	_, err = client.Do(ctx, "self-destruct", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	_, err = client.StartSpeaking(ctx, transport.Addr{Port: 4444})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient without identity")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.commands, 3)
	for _, c := range rec.commands {
		assert.True(t, c.failed, c.commandType)
	}
	assert.Equal(t, "unknown", rec.commands[1].commandType)
}

func TestCommandLabelsAreBounded(t *testing.T) {
	svc, _, _ := newTestService()
	rec := &fakeRecorder{}
	h := NewHandler(svc, rec, 4444)

	h.handle([]byte(`{"type":"status","id":"1"}`))
	h.handle([]byte(`{"type":"x-1f3a","id":"2"}`))
	h.handle([]byte(`{"type":"x-9c2b","id":"3"}`))
	h.handle([]byte("{not json"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	labels := make([]string, 0, len(rec.commands))
	for _, c := range rec.commands {
		labels = append(labels, c.commandType)
	}
	assert.Equal(t, []string{"status", "unknown", "unknown", "unknown"}, labels)
}

func TestHandleInvalidJSON(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, nil, 4444)

	msg := h.handle([]byte("{not json"))
	assert.Equal(t, protocol.TypeReply, msg.Type)
	reply, ok := msg.Payload.(protocol.Reply)
	require.True(t, ok)
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, "invalid message")
}

func TestServerRunAndShutdown(t *testing.T) {
	svc, _, _ := newTestService()
	srv := NewServer("127.0.0.1:0", NewHandler(svc, nil, 4444))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerRunBadAddress(t *testing.T) {
	svc, _, _ := newTestService()
	srv := NewServer("256.0.0.1:bad", NewHandler(svc, nil, 4444))

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
