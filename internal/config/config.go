// ABOUTME: Node configuration file
// ABOUTME: YAML sections for identity, transport, audio, jitter buffering, pipelines, control and logging
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/meshtalk/meshtalk-go/pkg/audio"
	"github.com/meshtalk/meshtalk-go/pkg/mixer"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
	"gopkg.in/yaml.v3"
)

// Config represents the complete node configuration
type Config struct {
	// Identity is this node's mesh identity; generated when empty
	Identity  string          `yaml:"identity"`
	Transport TransportConfig `yaml:"transport"`
	Audio     AudioConfig     `yaml:"audio"`
	Jitter    JitterConfig    `yaml:"jitter"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Control   ControlConfig   `yaml:"control"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TransportConfig selects how mesh identities are reached
type TransportConfig struct {
	BindHost string            `yaml:"bind_host"`
	Peers    map[string]string `yaml:"peers"` // identity -> host
	MDNS     bool              `yaml:"mdns"`
}

// AudioConfig contains capture, playback and codec parameters
type AudioConfig struct {
	SampleRate    int               `yaml:"sample_rate"`
	Compression   audio.Compression `yaml:"compression"`
	PacketSize    int               `yaml:"packet_size"` // 0 derives it from the compression ratio
	Input         string            `yaml:"input"`       // malgo, file or tone
	InputFile     string            `yaml:"input_file"`
	ToneFrequency float64           `yaml:"tone_frequency"`
	Output        string            `yaml:"output"` // malgo, oto or discard
	Volume        int               `yaml:"volume"`
}

// JitterConfig contains the receiver's jitter buffer parameters
type JitterConfig struct {
	BufferMs      int           `yaml:"buffer_ms"`
	Delay         time.Duration `yaml:"delay"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	MaxPlayingLag time.Duration `yaml:"max_playing_lag"`
}

// PipelineConfig contains sender and receiver socket parameters
type PipelineConfig struct {
	ServerPort         int           `yaml:"server_port"`
	ClientPort         int           `yaml:"client_port"`
	OpenRetries        int           `yaml:"open_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	MaxReceiveFailures int           `yaml:"max_receive_failures"`
	DriftThreshold     int           `yaml:"drift_threshold"` // samples
}

// ControlConfig contains the control server configuration
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // also log to this file when set
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Identity: uuid.NewString(),
		Transport: TransportConfig{
			BindHost: "0.0.0.0",
			Peers:    map[string]string{},
			MDNS:     true,
		},
		Audio: AudioConfig{
			SampleRate:    mixer.DefaultSampleRate,
			Compression:   audio.ALaw,
			Input:         "malgo",
			ToneFrequency: 440,
			Output:        "malgo",
			Volume:        100,
		},
		Jitter: JitterConfig{
			BufferMs:      mixer.DefaultBufferMs,
			Delay:         mixer.DefaultDelayMs * time.Millisecond,
			IdleTimeout:   mixer.DefaultIdleTimeout,
			MaxPlayingLag: mixer.DefaultMaxPlayingLag,
		},
		Pipeline: PipelineConfig{
			ServerPort:         walkietalkie.DefaultServerPort,
			ClientPort:         walkietalkie.DefaultClientPort,
			OpenRetries:        walkietalkie.DefaultOpenRetries,
			RetryDelay:         walkietalkie.DefaultRetryDelay,
			MaxReceiveFailures: walkietalkie.DefaultMaxReceiveFailures,
			DriftThreshold:     walkietalkie.DefaultDriftThreshold,
		},
		Control: ControlConfig{
			Enabled: true,
			Address: "127.0.0.1:8927",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if config.Identity == "" {
		config.Identity = uuid.NewString()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Identity == "" {
		return fmt.Errorf("identity cannot be empty")
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Jitter.Validate(); err != nil {
		return fmt.Errorf("jitter config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.PacketSize != 0 {
		if a.PacketSize < protocol.MinPacketSize || a.PacketSize > protocol.MaxPacketSize {
			return fmt.Errorf("packet_size must be between %d and %d bytes, got %d",
				protocol.MinPacketSize, protocol.MaxPacketSize, a.PacketSize)
		}
	}

	switch a.Input {
	case "malgo", "tone":
	case "file":
		if a.InputFile == "" {
			return fmt.Errorf("input_file is required for the file input")
		}
	default:
		return fmt.Errorf("input must be one of [malgo, file, tone], got '%s'", a.Input)
	}

	switch a.Output {
	case "malgo", "oto", "discard":
	default:
		return fmt.Errorf("output must be one of [malgo, oto, discard], got '%s'", a.Output)
	}

	if a.Volume < 0 || a.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", a.Volume)
	}
	return nil
}

// Validate validates jitter buffer configuration
func (j *JitterConfig) Validate() error {
	if j.BufferMs < 100 {
		return fmt.Errorf("buffer_ms must be at least 100, got %d", j.BufferMs)
	}
	if j.Delay < 0 || j.Delay >= time.Duration(j.BufferMs)*time.Millisecond {
		return fmt.Errorf("delay must be in [0, buffer_ms), got %s", j.Delay)
	}
	if j.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", j.IdleTimeout)
	}
	if j.MaxPlayingLag <= 0 {
		return fmt.Errorf("max_playing_lag must be positive, got %s", j.MaxPlayingLag)
	}
	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	for name, port := range map[string]int{"server_port": p.ServerPort, "client_port": p.ClientPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}
	if p.ServerPort == p.ClientPort {
		return fmt.Errorf("server_port and client_port must differ, both are %d", p.ServerPort)
	}
	if p.OpenRetries < 1 {
		return fmt.Errorf("open_retries must be at least 1, got %d", p.OpenRetries)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative, got %s", p.RetryDelay)
	}
	if p.MaxReceiveFailures < 1 {
		return fmt.Errorf("max_receive_failures must be at least 1, got %d", p.MaxReceiveFailures)
	}
	if p.DriftThreshold < 1 {
		return fmt.Errorf("drift_threshold must be at least 1 sample, got %d", p.DriftThreshold)
	}
	return nil
}

// Validate validates control configuration
func (c *ControlConfig) Validate() error {
	if c.Enabled && c.Address == "" {
		return fmt.Errorf("address cannot be empty when control is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [trace, debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}

// Sender derives the sender pipeline configuration; devices are set by the caller
func (c *Config) Sender() walkietalkie.SenderConfig {
	return walkietalkie.SenderConfig{
		Compression:    c.Audio.Compression,
		SampleRate:     c.Audio.SampleRate,
		PacketSize:     c.Audio.PacketSize,
		LocalPort:      c.Pipeline.ClientPort,
		OpenRetries:    c.Pipeline.OpenRetries,
		RetryDelay:     c.Pipeline.RetryDelay,
		DriftThreshold: c.Pipeline.DriftThreshold,
	}
}

// Receiver derives the receiver pipeline configuration; devices are set by the caller
func (c *Config) Receiver() walkietalkie.ReceiverConfig {
	return walkietalkie.ReceiverConfig{
		Compression:        c.Audio.Compression,
		SampleRate:         c.Audio.SampleRate,
		PacketSize:         c.Audio.PacketSize,
		Port:               c.Pipeline.ServerPort,
		OpenRetries:        c.Pipeline.OpenRetries,
		RetryDelay:         c.Pipeline.RetryDelay,
		MaxReceiveFailures: c.Pipeline.MaxReceiveFailures,
		BufferMs:           c.Jitter.BufferMs,
		Delay:              c.Jitter.Delay,
		IdleTimeout:        c.Jitter.IdleTimeout,
		MaxPlayingLag:      c.Jitter.MaxPlayingLag,
	}
}
