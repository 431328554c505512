// Package config holds the settings shared by all modes.
//
// Values are layered: built-in defaults, then an optional config file, then the
// environment, then command line flags (applied by the caller).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"multistatus/internal/channel"
)

// EnvFIFO overrides the channel location
const EnvFIFO = "MULTISTATUS_FIFO"

type Config struct {
	FIFO          string  `toml:"fifo" yaml:"fifo"`
	Priority      int     `toml:"priority" yaml:"priority"`
	Timeout       float64 `toml:"timeout" yaml:"timeout"`             // Staleness timeout in seconds
	StartupDelay  float64 `toml:"startup_delay" yaml:"startup_delay"` // Producer delay in combined mode, in seconds
	QueueSize     int     `toml:"queue_size" yaml:"queue_size"`
	Exec          string  `toml:"exec" yaml:"exec"`
	LogLevel      string  `toml:"log_level" yaml:"log_level"`
	MetricsListen string  `toml:"metrics_listen" yaml:"metrics_listen"`
}

// Default returns built-in defaults
func Default() Config {
	return Config{
		FIFO:         channel.DefaultPath(),
		Priority:     0,
		Timeout:      2.0,
		StartupDelay: 1.0,
		QueueSize:    16,
		LogLevel:     "info",
	}
}

// Load returns the defaults overlaid with the file at path. The format is chosen by
// extension: .toml, .yaml or .yml. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		for _, key := range meta.Undecoded() {
			slog.Warn("Unknown config key", "key", key.String(), "path", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("config format %q not supported (%s): use .toml or .yaml", ext, path)
	}

	return cfg, nil
}

// ApplyEnv overlays settings from the environment
func (c *Config) ApplyEnv() {
	if fifo := os.Getenv(EnvFIFO); fifo != "" {
		c.FIFO = fifo
	}
}

// Validate checks that the settings can be used
func (c Config) Validate() error {
	if c.FIFO == "" {
		return fmt.Errorf("channel path must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("startup delay must not be negative, got %v", c.StartupDelay)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration returns the staleness timeout
func (c Config) TimeoutDuration() time.Duration {
	return seconds(c.Timeout)
}

// StartupDelayDuration returns the producer start delay of combined mode
func (c Config) StartupDelayDuration() time.Duration {
	return seconds(c.StartupDelay)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
