package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meshtalk/meshtalk-go/pkg/mixer"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	running bool
	stats   walkietalkie.SenderStats
}

func (f *fakeSender) Running() bool                   { return f.running }
func (f *fakeSender) Stats() walkietalkie.SenderStats { return f.stats }

type fakeReceiver struct {
	running bool
	stats   walkietalkie.ReceiverStats
}

func (f *fakeReceiver) Running() bool                     { return f.running }
func (f *fakeReceiver) Stats() walkietalkie.ReceiverStats { return f.stats }

func TestCollectorsReadLiveStats(t *testing.T) {
	s := &fakeSender{running: true, stats: walkietalkie.SenderStats{PacketsSent: 7, DriftCorrections: 1}}
	r := &fakeReceiver{stats: walkietalkie.ReceiverStats{
		PacketsReceived: 5,
		Mixer:           mixer.Stats{ActiveSources: 2},
	}}
	m := New(s, r)

	expected := `
# HELP meshtalk_sender_packets_sent_total Voice datagrams handed to the transport
# TYPE meshtalk_sender_packets_sent_total counter
meshtalk_sender_packets_sent_total 7
# HELP meshtalk_mixer_active_sources Sources currently mixed
# TYPE meshtalk_mixer_active_sources gauge
meshtalk_mixer_active_sources 2
# HELP meshtalk_receiver_running Whether the receiver pipeline is running
# TYPE meshtalk_receiver_running gauge
meshtalk_receiver_running 0
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"meshtalk_sender_packets_sent_total", "meshtalk_mixer_active_sources", "meshtalk_receiver_running"))

	s.stats.PacketsSent = 9
	r.running = true
	expected = `
# HELP meshtalk_sender_packets_sent_total Voice datagrams handed to the transport
# TYPE meshtalk_sender_packets_sent_total counter
meshtalk_sender_packets_sent_total 9
# HELP meshtalk_receiver_running Whether the receiver pipeline is running
# TYPE meshtalk_receiver_running gauge
meshtalk_receiver_running 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"meshtalk_sender_packets_sent_total", "meshtalk_receiver_running"))
}

func TestRecordCommand(t *testing.T) {
	m := New(&fakeSender{}, &fakeReceiver{})

	m.RecordCommand("start-listening", nil)
	m.RecordCommand("start-listening", nil)
	m.RecordCommand("start-speaking", errors.New("no recipients"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("start-listening", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("start-speaking", "error")))
}

func TestHandler(t *testing.T) {
	m := New(&fakeSender{}, &fakeReceiver{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "meshtalk_build_info")
	assert.Contains(t, string(body), "go_goroutines")
}
