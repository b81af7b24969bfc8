// ABOUTME: Prometheus metrics for the voice pipelines
// ABOUTME: Exposes sender, receiver and mixer counters plus control command counts
package metrics

import (
	"net/http"

	"github.com/meshtalk/meshtalk-go/internal/version"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshtalk"

// SenderSource is the view of a sender the metrics read from
type SenderSource interface {
	Running() bool
	Stats() walkietalkie.SenderStats
}

// ReceiverSource is the view of a receiver the metrics read from
type ReceiverSource interface {
	Running() bool
	Stats() walkietalkie.ReceiverStats
}

// Metrics owns a registry with every meshtalk collector
type Metrics struct {
	registry *prometheus.Registry

	// Commands counts control commands by type and result
	Commands *prometheus.CounterVec
}

// New creates the registry and registers collectors reading from s and r
func New(s SenderSource, r ReceiverSource) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version.Version},
	}, func() float64 { return 1 })

	// Sender
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "sender", Name: "running",
		Help: "Whether the sender pipeline is running",
	}, func() float64 { return boolValue(s.Running()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sender", Name: "packets_sent_total",
		Help: "Voice datagrams handed to the transport",
	}, func() float64 { return float64(s.Stats().PacketsSent) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sender", Name: "send_errors_total",
		Help: "Voice datagrams the transport refused",
	}, func() float64 { return float64(s.Stats().SendErrors) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sender", Name: "drift_corrections_total",
		Help: "Timestamp snaps caused by capture drift",
	}, func() float64 { return float64(s.Stats().DriftCorrections) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sender", Name: "captured_bytes_total",
		Help: "PCM bytes read from the input device",
	}, func() float64 { return float64(s.Stats().BytesCaptured) })

	// Receiver
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "running",
		Help: "Whether the receiver pipeline is running",
	}, func() float64 { return boolValue(r.Running()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "packets_received_total",
		Help: "Voice packets written into the mixer",
	}, func() float64 { return float64(r.Stats().PacketsReceived) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "packets_dropped_total",
		Help: "Malformed voice packets",
	}, func() float64 { return float64(r.Stats().PacketsDropped) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "receive_errors_total",
		Help: "Failed receive calls",
	}, func() float64 { return float64(r.Stats().ReceiveErrors) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "receiver", Name: "played_bytes_total",
		Help: "PCM bytes written to the output device",
	}, func() float64 { return float64(r.Stats().BytesPlayed) })

	// Mixer of the current receiver session
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "mixer", Name: "active_sources",
		Help: "Sources currently mixed",
	}, func() float64 { return float64(r.Stats().Mixer.ActiveSources) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "mixer", Name: "lag_corrections",
		Help: "Times the player skipped ahead in the current session",
	}, func() float64 { return float64(r.Stats().Mixer.LagCorrections) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "mixer", Name: "skipped_samples",
		Help: "Samples skipped to catch up in the current session",
	}, func() float64 { return float64(r.Stats().Mixer.SamplesSkipped) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "mixer", Name: "dropped_writes",
		Help: "Packets entirely outside their source window in the current session",
	}, func() float64 { return float64(r.Stats().Mixer.DroppedWrites) })

	return &Metrics{
		registry: reg,
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "control", Name: "commands_total",
			Help: "Control commands by type and result",
		}, []string{"type", "result"}),
	}
}

// RecordCommand counts one control command
func (m *Metrics) RecordCommand(commandType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Commands.WithLabelValues(commandType, result).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
