// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with a blocking ring buffer feeding the playback callback
package output

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool

	// Ring buffer for callback-based playback
	ringBuffer *RingBuffer
	mu         sync.Mutex
}

// NewMalgo creates a new Malgo output
func NewMalgo() Output {
	return &Malgo{
		volume: 100,
	}
}

// Open initializes the output device with specified format
func (m *Malgo) Open(sampleRate, channels int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"component":   "output",
		"backend":     "malgo",
		"sample_rate": sampleRate,
		"channels":    channels,
	})

	// If already initialized with same format, reuse
	if m.device != nil && m.sampleRate == sampleRate && m.channels == channels {
		log.Debug("Audio output already initialized with same format, reusing device")
		return nil
	}

	// If format changed, reinitialize
	if m.device != nil {
		log.Infof("Format change detected (%dHz/%dch), reinitializing device", m.sampleRate, m.channels)
		m.closeDevice()
	}

	// Create malgo context if needed
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	// Ring buffer holds 200ms; writers block beyond that
	m.ringBuffer = NewRingBuffer(sampleRate * channels * 200 / 1000)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	ring := m.ringBuffer
	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			samples := make([]int16, int(frameCount)*channels)
			ring.Read(samples)
			for i, s := range samples {
				audio.PutSample(pOutputSample, i, s)
			}
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device
	m.sampleRate = sampleRate
	m.channels = channels
	m.ready = true

	log.Info("Audio output initialized (malgo/S16)")
	return nil
}

// Write queues audio for playback, blocking while the ring buffer is full
func (m *Malgo) Write(pcm []byte) error {
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return ErrClosed
	}
	ring := m.ringBuffer
	volumed := applyVolume(pcm, m.volume, m.muted)
	m.mu.Unlock()

	samples := audio.BytesToSamples(volumed)
	if ring.Write(samples) < len(samples) {
		return ErrClosed
	}
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			logrus.WithField("component", "output").Warnf("malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.ringBuffer != nil {
		m.ringBuffer.Close()
	}
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			logrus.WithField("component", "output").Warnf("device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	m.ready = false
}

// SetVolume sets the volume (0-100)
func (m *Malgo) SetVolume(volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(volume)
}

// SetMuted sets mute state
func (m *Malgo) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// GetVolume returns current volume
func (m *Malgo) GetVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// IsMuted returns mute state
func (m *Malgo) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}
