package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshtalk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.NotEmpty(t, c.Identity)
	assert.NotEqual(t, c.Identity, Default().Identity, "identities are generated")
	assert.Equal(t, audio.ALaw, c.Audio.Compression)
	assert.Equal(t, 4444, c.Pipeline.ServerPort)
	assert.Equal(t, 5555, c.Pipeline.ClientPort)
	assert.Equal(t, 100*time.Millisecond, c.Jitter.Delay)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
identity: alice
transport:
  mdns: false
  peers:
    bob: 192.168.1.20
audio:
  compression: 8bit
  input: tone
jitter:
  delay: 150ms
  idle_timeout: 1s
pipeline:
  retry_delay: 250ms
logging:
  level: debug
  format: json
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "alice", c.Identity)
	assert.False(t, c.Transport.MDNS)
	assert.Equal(t, map[string]string{"bob": "192.168.1.20"}, c.Transport.Peers)
	assert.Equal(t, audio.To8Bits, c.Audio.Compression)
	assert.Equal(t, "tone", c.Audio.Input)
	assert.Equal(t, 150*time.Millisecond, c.Jitter.Delay)
	assert.Equal(t, time.Second, c.Jitter.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, c.Pipeline.RetryDelay)
	assert.Equal(t, "json", c.Logging.Format)

	// untouched keys keep their defaults
	assert.Equal(t, 8000, c.Audio.SampleRate)
	assert.Equal(t, 1000, c.Jitter.BufferMs)
	assert.Equal(t, 5, c.Pipeline.OpenRetries)
}

func TestLoadGeneratesMissingIdentity(t *testing.T) {
	c, err := Load(writeConfig(t, "identity: \"\"\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, c.Identity)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read")

	_, err = Load(writeConfig(t, "audio: [not, a, map]\n"))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = Load(writeConfig(t, "audio:\n  compression: opus\n"))
	assert.ErrorContains(t, err, "unknown compression")

	_, err = Load(writeConfig(t, "pipeline:\n  server_port: 70000\n"))
	assert.ErrorContains(t, err, "validation failed")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(c *Config)
		errorMsg string
	}{
		{"valid configuration", func(c *Config) {}, ""},
		{"empty identity", func(c *Config) { c.Identity = "" }, "identity"},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }, "sample_rate"},
		{"packet too small", func(c *Config) { c.Audio.PacketSize = 10 }, "packet_size"},
		{"packet without a whole sample", func(c *Config) { c.Audio.PacketSize = 11 }, "packet_size"},
		{"packet too large", func(c *Config) { c.Audio.PacketSize = 1024 }, "packet_size"},
		{"unknown input", func(c *Config) { c.Audio.Input = "portaudio" }, "input must be"},
		{"file input without file", func(c *Config) { c.Audio.Input = "file" }, "input_file"},
		{"unknown output", func(c *Config) { c.Audio.Output = "alsa" }, "output must be"},
		{"volume out of range", func(c *Config) { c.Audio.Volume = 101 }, "volume"},
		{"small buffer", func(c *Config) { c.Jitter.BufferMs = 50 }, "buffer_ms"},
		{"delay beyond buffer", func(c *Config) { c.Jitter.Delay = 2 * time.Second }, "delay"},
		{"zero idle timeout", func(c *Config) { c.Jitter.IdleTimeout = 0 }, "idle_timeout"},
		{"zero lag", func(c *Config) { c.Jitter.MaxPlayingLag = 0 }, "max_playing_lag"},
		{"same ports", func(c *Config) { c.Pipeline.ClientPort = c.Pipeline.ServerPort }, "must differ"},
		{"no retries", func(c *Config) { c.Pipeline.OpenRetries = 0 }, "open_retries"},
		{"no failures allowed", func(c *Config) { c.Pipeline.MaxReceiveFailures = 0 }, "max_receive_failures"},
		{"zero drift threshold", func(c *Config) { c.Pipeline.DriftThreshold = 0 }, "drift_threshold"},
		{"control without address", func(c *Config) { c.Control.Address = "" }, "address"},
		{"control disabled without address", func(c *Config) {
			c.Control.Enabled = false
			c.Control.Address = ""
		}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errorMsg)
		})
	}
}

func TestPipelineConfigs(t *testing.T) {
	c := Default()
	c.Audio.PacketSize = 128
	c.Jitter.Delay = 200 * time.Millisecond

	s := c.Sender()
	assert.Equal(t, audio.ALaw, s.Compression)
	assert.Equal(t, 128, s.PacketSize)
	assert.Equal(t, 5555, s.LocalPort)
	assert.Equal(t, 1000, s.DriftThreshold)

	r := c.Receiver()
	assert.Equal(t, 4444, r.Port)
	assert.Equal(t, 200*time.Millisecond, r.Delay)
	assert.Equal(t, 3, r.MaxReceiveFailures)
	assert.Equal(t, 1000, r.BufferMs)
}
