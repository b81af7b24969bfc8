// ABOUTME: Malgo-based microphone capture
// ABOUTME: Buffers capture callbacks and serves blocking fixed-size reads
package input

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// Malgo captures from the default microphone through miniaudio
type Malgo struct {
	format audio.Format

	mu       sync.Mutex
	avail    *sync.Cond
	pending  []byte
	maxBytes int
	stopped  bool
	overruns uint64

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewMalgo creates a microphone input; the device is opened by Start
func NewMalgo(format audio.Format) *Malgo {
	m := &Malgo{
		format: format,
		// keep at most one second of unread audio
		maxBytes: format.SampleRate * audio.BytesPerSample,
	}
	m.avail = sync.NewCond(&m.mu)
	return m
}

// Start opens and starts the capture device
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logrus.WithField("component", "input").Debugf("malgo: %s", msg)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	capCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	capCfg.Capture.Format = malgo.FormatS16
	capCfg.Capture.Channels = 1
	capCfg.SampleRate = uint32(m.format.SampleRate)

	// alsa specific settings for linux
	if runtime.GOOS == "linux" {
		capCfg.Alsa.NoMMap = 1
	}

	onCapture := func(_, input []byte, frameCount uint32) {
		m.push(input[:int(frameCount)*audio.BytesPerSample])
	}

	device, err := malgo.InitDevice(ctx.Context, capCfg, malgo.DeviceCallbacks{Data: onCapture})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to open capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.malgoCtx = ctx
	m.device = device
	m.stopped = false

	logrus.WithFields(logrus.Fields{
		"component":   "input",
		"backend":     "malgo",
		"sample_rate": m.format.SampleRate,
	}).Info("Capture device started")
	return nil
}

// push appends captured bytes, dropping the oldest audio on overrun
func (m *Malgo) push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.pending = append(m.pending, data...)
	if excess := len(m.pending) - m.maxBytes; excess > 0 {
		excess += excess & 1
		m.pending = m.pending[excess:]
		m.overruns++
	}
	m.avail.Broadcast()
}

// Read blocks until len(pcm) bytes were captured
func (m *Malgo) Read(pcm []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.stopped && len(m.pending) < len(pcm) {
		m.avail.Wait()
	}
	if m.stopped {
		return 0, ErrStopped
	}

	n := copy(pcm, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// Stop halts capture and unblocks Read
func (m *Malgo) Stop() error {
	m.mu.Lock()
	m.stopped = true
	m.pending = nil
	device := m.device
	m.avail.Broadcast()
	m.mu.Unlock()

	if device != nil {
		if err := device.Stop(); err != nil {
			return fmt.Errorf("failed to stop capture device: %w", err)
		}
	}
	return nil
}

// Close releases the device
func (m *Malgo) Close() error {
	if err := m.Stop(); err != nil {
		logrus.WithField("component", "input").Warnf("stop on close: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		_ = m.malgoCtx.Uninit()
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}
