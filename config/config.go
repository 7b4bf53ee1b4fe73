// Package config loads the YAML configuration shared by the host binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-pulso/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root of the configuration file.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Step      DetectorConfig  `yaml:"step"`
	Heartbeat DetectorConfig  `yaml:"heartbeat"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
}

// IngestConfig names the NATS subjects raw sample frames arrive on.
type IngestConfig struct {
	NATSURL            string `yaml:"nats_url"`
	AccelSubject       string `yaml:"accel_subject"`
	PPGSubject         string `yaml:"ppg_subject"`
	StepCounterSubject string `yaml:"step_counter_subject"`
}

// TelemetryConfig selects where readings are reported.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Sink        string `yaml:"sink"` // nats, mqtt or sqlite
	QueueSize   int    `yaml:"queue_size"`
	SampleEvery int    `yaml:"sample_every"`

	UserID     string `yaml:"user_id"`
	DeviceType string `yaml:"device_type"`
	DeviceID   string `yaml:"device_id"`
	// Activity labels readings collected for training, e.g. "walking".
	Activity   string `yaml:"activity"`

	NATSSubject string     `yaml:"nats_subject"`
	MQTT        MQTTConfig `yaml:"mqtt"`
	SQLitePath  string     `yaml:"sqlite_path"`
}

// MQTTConfig holds MQTT sink settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// BroadcastConfig controls the websocket hub.
type BroadcastConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Default returns a complete configuration for a 100 Hz accelerometer and a
// 30 fps camera.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Step: DetectorConfig{
			Enabled:       true,
			SampleRateHz:  100,
			Filter:        FilterConfig{Kind: "butterworth", CutoffHz: 3},
			Mode:          "batch",
			WindowSamples: 100,
			Delta:         3.0,
			MinInterval:   Duration(500 * time.Millisecond),
			RateWindow:    Duration(time.Minute),
		},
		Heartbeat: DetectorConfig{
			Enabled:          true,
			SampleRateHz:     30,
			Filter:           FilterConfig{Kind: "butterworth", CutoffHz: 4},
			Mode:             "streaming",
			WindowDuration:   Duration(3 * time.Second),
			MaxWindowEntries: 1024,
			Delta:            1.0,
			MinInterval:      Duration(272 * time.Millisecond),
			RateWindow:       Duration(time.Minute),
		},
		Ingest: IngestConfig{
			NATSURL:            "nats://127.0.0.1:4222",
			AccelSubject:       "pulso.samples.accel",
			PPGSubject:         "pulso.samples.ppg",
			StepCounterSubject: "pulso.samples.steps",
		},
		Telemetry: TelemetryConfig{
			Sink:        "nats",
			QueueSize:   1024,
			SampleEvery: 1,
			DeviceType:  "generic",
			NATSSubject: "pulso.telemetry",
			MQTT: MQTTConfig{
				Broker:   "127.0.0.1:1883",
				Topic:    "pulso/telemetry",
				ClientID: "pulsod",
			},
			SQLitePath: "pulso.db",
		},
		Broadcast: BroadcastConfig{
			Addr: ":8081",
			Path: "/ws",
		},
	}
}

// Load reads a YAML file on top of Default, so partial files are fine.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Step.Enabled {
		if _, err := c.Step.Pipeline(false); err != nil {
			return fmt.Errorf("%w: step: %v", ErrInvalid, err)
		}
	}
	if c.Heartbeat.Enabled {
		if _, err := c.Heartbeat.Pipeline(true); err != nil {
			return fmt.Errorf("%w: heartbeat: %v", ErrInvalid, err)
		}
	}
	if c.Telemetry.Enabled {
		if err := c.Telemetry.validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalid, err)
		}
	}
	if c.Broadcast.Enabled && !strings.HasPrefix(c.Broadcast.Path, "/") {
		return fmt.Errorf("%w: broadcast path must start with '/', got %q", ErrInvalid, c.Broadcast.Path)
	}
	return nil
}

func (t TelemetryConfig) validate() error {
	if t.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}
	if t.SampleEvery < 0 {
		return fmt.Errorf("sample_every must not be negative")
	}
	switch strings.ToLower(t.Sink) {
	case "nats":
		if t.NATSSubject == "" {
			return fmt.Errorf("nats_subject is required")
		}
	case "mqtt":
		if t.MQTT.Broker == "" || t.MQTT.Topic == "" {
			return fmt.Errorf("mqtt broker and topic are required")
		}
	case "sqlite":
		if t.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required")
		}
	default:
		return fmt.Errorf("unknown sink %q", t.Sink)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.Level {
	lvl, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.InfoLevel
	}
	return lvl
}
