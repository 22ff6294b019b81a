// Package config loads the headingd configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/heading.report/internal/history"
	"github.com/banshee-data/heading.report/internal/serialmux"
	"github.com/banshee-data/heading.report/internal/telemetry"
)

// ExampleConfigPath is the checked-in example configuration, relative to the
// repository root.
const ExampleConfigPath = "config/headingd.example.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration. Durations are strings such as "500ms".
type Config struct {
	// Port is the serial device. Empty selects the first port found.
	Port          string `json:"port"`
	BaudRate      int    `json:"baud_rate"`
	DataBits      int    `json:"data_bits"`
	StopBits      int    `json:"stop_bits"`
	Parity        string `json:"parity"`
	ReadTimeout   string `json:"read_timeout"`
	IdleInterval  string `json:"idle_interval"`
	HistoryLength int    `json:"history_length"`
	DBPath        string `json:"db_path"`
	Listen        string `json:"listen"`
	RecordRaw     bool   `json:"record_raw"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:          "",
		BaudRate:      serialmux.DefaultBaudRate,
		DataBits:      8,
		StopBits:      1,
		Parity:        "N",
		ReadTimeout:   telemetry.DefaultReadTimeout.String(),
		IdleInterval:  telemetry.DefaultIdleInterval.String(),
		HistoryLength: history.DefaultCapacity,
		DBPath:        "heading.db",
		Listen:        "localhost:8080",
	}
}

// Load reads a JSON config file and overlays it onto Default. The file must
// have a .json extension, be at most 1MB and contain only known fields.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.PortOptions().Normalise(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.Durations(); err != nil {
		errs = append(errs, err)
	}
	if c.HistoryLength < 0 {
		errs = append(errs, fmt.Errorf("history_length must be non-negative, got %d", c.HistoryLength))
	}
	return errors.Join(errs...)
}

// Durations parses the read timeout and idle interval. Empty strings yield
// the decoder defaults.
func (c *Config) Durations() (readTimeout, idle time.Duration, err error) {
	readTimeout, err = parseDuration("read_timeout", c.ReadTimeout, telemetry.DefaultReadTimeout)
	if err != nil {
		return 0, 0, err
	}
	idle, err = parseDuration("idle_interval", c.IdleInterval, telemetry.DefaultIdleInterval)
	if err != nil {
		return 0, 0, err
	}
	return readTimeout, idle, nil
}

func parseDuration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", name, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, s)
	}
	return d, nil
}

// PortOptions returns the serial parameters of c.
func (c *Config) PortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
	}
}
