// ABOUTME: Entry point for a meshtalk node
// ABOUTME: Parses CLI flags, wires transport, pipelines, discovery, metrics and the control server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meshtalk/meshtalk-go/internal/config"
	"github.com/meshtalk/meshtalk-go/internal/control"
	"github.com/meshtalk/meshtalk-go/internal/discovery"
	"github.com/meshtalk/meshtalk-go/internal/logging"
	"github.com/meshtalk/meshtalk-go/internal/metrics"
	"github.com/meshtalk/meshtalk-go/internal/version"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/meshtalk/meshtalk-go/pkg/audio/input"
	"github.com/meshtalk/meshtalk-go/pkg/audio/output"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// peerFlags collects repeated -peer identity=host flags
type peerFlags map[string]string

func (p peerFlags) String() string {
	parts := make([]string, 0, len(p))
	for id, host := range p {
		parts = append(parts, id+"="+host)
	}
	return strings.Join(parts, ",")
}

func (p peerFlags) Set(value string) error {
	id, host, ok := strings.Cut(value, "=")
	if !ok || id == "" || host == "" {
		return fmt.Errorf("peer must be identity=host, got %q", value)
	}
	p[id] = host
	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "ctl" {
		os.Exit(runCtl(os.Args[2:]))
	}
	if err := run(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("meshtalk failed")
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("meshtalk", flag.ExitOnError)
	peers := peerFlags{}
	configPath := fs.String("config", "", "Path to YAML config file")
	identity := fs.String("identity", "", "Mesh identity of this node (default from config or random)")
	inputBackend := fs.String("input", "", "Capture backend: malgo, file or tone")
	inputFile := fs.String("input-file", "", "Audio file to capture from (MP3 or FLAC)")
	outputBackend := fs.String("output", "", "Playback backend: malgo, oto or discard")
	compression := fs.String("compression", "", "Wire compression: none, 8bit or alaw")
	controlAddr := fs.String("control", "", "Control server address")
	noMDNS := fs.Bool("no-mdns", false, "Disable mDNS discovery")
	listen := fs.Bool("listen", false, "Start listening immediately")
	speakTo := fs.String("speak-to", "", "Comma-separated identity[:port] list to speak to immediately")
	logFile := fs.String("log-file", "", "Also log to this file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Var(peers, "peer", "Static peer as identity=host (repeatable)")
	fs.Parse(args)

	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override the file
	if *identity != "" {
		cfg.Identity = *identity
	}
	if *inputBackend != "" {
		cfg.Audio.Input = *inputBackend
	}
	if *inputFile != "" {
		cfg.Audio.InputFile = *inputFile
		if *inputBackend == "" {
			cfg.Audio.Input = "file"
		}
	}
	if *outputBackend != "" {
		cfg.Audio.Output = *outputBackend
	}
	if *compression != "" {
		c, err := audio.ParseCompression(*compression)
		if err != nil {
			return err
		}
		cfg.Audio.Compression = c
	}
	if *controlAddr != "" {
		cfg.Control.Address = *controlAddr
	}
	if *noMDNS {
		cfg.Transport.MDNS = false
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if cfg.Transport.Peers == nil {
		cfg.Transport.Peers = map[string]string{}
	}
	for id, host := range peers {
		cfg.Transport.Peers[id] = host
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var recipients []transport.Addr
	if *speakTo != "" {
		for _, s := range strings.Split(*speakTo, ",") {
			addr, err := transport.ParseAddr(s, cfg.Pipeline.ServerPort)
			if err != nil {
				return err
			}
			recipients = append(recipients, addr)
		}
	}

	closer, err := logging.Setup(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	log := logrus.WithField("component", "main")
	log.WithFields(logrus.Fields{
		"identity":    cfg.Identity,
		"version":     version.Version,
		"compression": cfg.Audio.Compression,
		"input":       cfg.Audio.Input,
		"output":      cfg.Audio.Output,
	}).Info("Starting meshtalk node")

	// Peer resolution: static peers first, then mDNS
	resolvers := transport.Chain{transport.NewStaticResolver(cfg.Transport.Peers)}
	if cfg.Transport.MDNS {
		disc := discovery.NewManager(discovery.Config{
			Identity: cfg.Identity,
			Port:     cfg.Pipeline.ServerPort,
		})
		defer disc.Stop()
		if err := disc.Advertise(); err != nil {
			log.WithError(err).Warn("mDNS advertisement failed")
		}
		disc.Browse()
		go logPeers(disc)
		resolvers = append(resolvers, disc)
	}
	tr := transport.NewUDP(cfg.Identity, cfg.Transport.BindHost, resolvers)

	senderCfg := cfg.Sender()
	senderCfg.NewInput = func() (input.Device, error) {
		return input.New(input.Config{
			Backend:   cfg.Audio.Input,
			Format:    audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 1, BitDepth: 16},
			File:      cfg.Audio.InputFile,
			Frequency: cfg.Audio.ToneFrequency,
		})
	}
	receiverCfg := cfg.Receiver()
	receiverCfg.NewOutput = func() (output.Output, error) {
		out, err := output.New(cfg.Audio.Output)
		if err != nil {
			return nil, err
		}
		if vc, ok := out.(output.VolumeControl); ok {
			vc.SetVolume(cfg.Audio.Volume)
		}
		return out, nil
	}

	sender := walkietalkie.NewSender(tr, senderCfg)
	receiver := walkietalkie.NewReceiver(tr, receiverCfg)
	svc := control.NewService(cfg.Identity, sender, receiver)
	m := metrics.New(sender, receiver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A UDP mesh is usable as soon as the process runs
	svc.SetReady(true)
	if *listen {
		svc.StartListening()
	}
	if len(recipients) > 0 {
		if err := svc.StartSpeaking(recipients); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Control.Enabled {
		srv := control.NewServer(cfg.Control.Address, control.NewHandler(svc, m, cfg.Pipeline.ServerPort))
		srv.Handle("/metrics", m.Handler())
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	g.Go(func() error {
		statusLoop(ctx, svc, sender, receiver)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		svc.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Node stopped")
	return nil
}

// logPeers logs discovered peers until discovery stops
func logPeers(disc *discovery.Manager) {
	for peer := range disc.Updates() {
		logrus.WithFields(logrus.Fields{
			"component": "discovery",
			"identity":  peer.Identity,
			"host":      peer.Host,
			"port":      peer.Port,
		}).Info("Peer available")
	}
}

// statusLoop periodically logs pipeline counters and any pipeline failure
func statusLoop(ctx context.Context, svc *control.Service, sender *walkietalkie.Sender, receiver *walkietalkie.Receiver) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log := logrus.WithField("component", "status")
	var lastSenderErr, lastReceiverErr error

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := svc.Status()
		log.WithFields(logrus.Fields{
			"speaking":  st.Speaking,
			"listening": st.Listening,
			"sent":      st.Sender.PacketsSent,
			"received":  st.Receiver.PacketsReceived,
			"dropped":   st.Receiver.PacketsDropped,
			"sources":   st.Receiver.ActiveSources,
		}).Debug("Pipeline status")

		if err := sender.Err(); err != nil && err != lastSenderErr {
			log.WithError(err).Error("Sender stopped")
		}
		lastSenderErr = sender.Err()
		if err := receiver.Err(); err != nil && err != lastReceiverErr {
			log.WithError(err).Error("Receiver stopped")
		}
		lastReceiverErr = receiver.Err()
	}
}
