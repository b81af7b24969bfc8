// ABOUTME: In-process loopback test app
// ABOUTME: Runs several speakers and one listener over a lossy in-memory mesh and reports the counters
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshtalk/meshtalk-go/internal/logging"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/meshtalk/meshtalk-go/pkg/audio/input"
	"github.com/meshtalk/meshtalk-go/pkg/audio/output"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"github.com/sirupsen/logrus"
)

var (
	speakers    = flag.Int("speakers", 2, "Number of speaking nodes")
	duration    = flag.Duration("duration", 5*time.Second, "How long to stream")
	loss        = flag.Float64("loss", 0.05, "Datagram loss rate in [0, 1]")
	delay       = flag.Duration("delay", 20*time.Millisecond, "One-way mesh latency")
	jitter      = flag.Duration("jitter", 30*time.Millisecond, "Extra random latency")
	seed        = flag.Int64("seed", 1, "Fault injection seed")
	compression = flag.String("compression", "alaw", "Wire compression: none, 8bit or alaw")
	audioFile   = flag.String("audio", "", "Audio file for the first speaker (MP3 or FLAC); tones otherwise")
	outputName  = flag.String("output", "discard", "Listener playback backend: discard, malgo or oto")
	debug       = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	if _, err := logging.Setup(logging.Options{Level: level, Format: "text"}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	comp, err := audio.ParseCompression(*compression)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid compression")
	}

	mesh := transport.NewMesh(*seed)
	defer mesh.Close()
	mesh.SetConditions(transport.Conditions{LossRate: *loss, Delay: *delay, Jitter: *jitter})

	rcfg := walkietalkie.DefaultReceiverConfig()
	rcfg.Compression = comp
	var recorder *output.Discard
	rcfg.NewOutput = func() (output.Output, error) {
		if *outputName == "discard" {
			recorder = output.NewDiscard()
			return recorder, nil
		}
		return output.New(*outputName)
	}
	listener := walkietalkie.NewReceiver(mesh.Node("listener"), rcfg)
	listener.Start()
	defer listener.Stop()

	hub := transport.Addr{Identity: "listener", Port: rcfg.Port}
	senders := make([]*walkietalkie.Sender, 0, *speakers)
	for i := 0; i < *speakers; i++ {
		scfg := walkietalkie.DefaultSenderConfig()
		scfg.Compression = comp
		freq := 300 + 150*float64(i)
		file := ""
		if i == 0 {
			file = *audioFile
		}
		scfg.NewInput = func() (input.Device, error) {
			if file != "" {
				return input.New(input.Config{Backend: "file", Format: audio.Voice, File: file})
			}
			return input.New(input.Config{Backend: "tone", Format: audio.Voice, Frequency: freq})
		}
		s := walkietalkie.NewSender(mesh.Node(fmt.Sprintf("speaker-%d", i)), scfg)
		s.Start(hub)
		senders = append(senders, s)
	}

	logrus.WithFields(logrus.Fields{
		"speakers":    *speakers,
		"loss":        *loss,
		"delay":       *delay,
		"jitter":      *jitter,
		"compression": comp,
	}).Info("Loopback running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case <-time.After(*duration):
	}

	for _, s := range senders {
		s.Stop()
	}
	// let the jitter buffer drain
	time.Sleep(rcfg.Delay + *delay + *jitter)
	rs := listener.Stats()
	listener.Stop()

	fmt.Println("=== Loopback Results ===")
	for i, s := range senders {
		st := s.Stats()
		fmt.Printf("speaker-%d: sent=%d send_errors=%d drift_corrections=%d captured=%d bytes\n",
			i, st.PacketsSent, st.SendErrors, st.DriftCorrections, st.BytesCaptured)
	}
	ms := mesh.Stats()
	fmt.Printf("mesh: sent=%d delivered=%d lost=%d unrouted=%d overflow=%d\n",
		ms.Sent, ms.Delivered, ms.Lost, ms.Unrouted, ms.Overflow)
	fmt.Printf("listener: received=%d dropped=%d receive_errors=%d played=%d bytes\n",
		rs.PacketsReceived, rs.PacketsDropped, rs.ReceiveErrors, rs.BytesPlayed)
	fmt.Printf("mixer: sources=%d clipped=%d dropped=%d lag_corrections=%d skipped=%d samples\n",
		rs.Mixer.SourcesCreated, rs.Mixer.ClippedWrites, rs.Mixer.DroppedWrites,
		rs.Mixer.LagCorrections, rs.Mixer.SamplesSkipped)
	if recorder != nil {
		fmt.Printf("output: %d bytes written\n", recorder.BytesWritten())
	}
	if err := listener.Err(); err != nil {
		logrus.WithError(err).Error("Listener failed")
		os.Exit(1)
	}
}
