// Package config provides configuration loading for the ruleflow server.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort         = 9091
	DefaultEventBus     = "gochannel"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultStoreTimeout = 5 * time.Second
)

// Config is the server configuration. Values from a file are overridden by
// command line flags and environment variables.
type Config struct {
	Port          int            `yaml:"port"`
	Store         StoreConfig    `yaml:"store"`
	EventBus      EventBusConfig `yaml:"event_bus"`
	WorkflowsPath string         `yaml:"workflows_path"`
	Log           LogConfig      `yaml:"log"`
	Tracing       bool           `yaml:"tracing"`
}

type StoreConfig struct {
	URL       string        `yaml:"url"`
	Namespace string        `yaml:"namespace"`
	Timeout   time.Duration `yaml:"timeout"`
}

type EventBusConfig struct {
	Type         string   `yaml:"type"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     DefaultPort,
		Store:    StoreConfig{Timeout: DefaultStoreTimeout},
		EventBus: EventBusConfig{Type: DefaultEventBus},
		Log:      LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads a YAML configuration file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	if c.Store.Timeout < 0 {
		return fmt.Errorf("store timeout %s is negative", c.Store.Timeout)
	}

	switch c.EventBus.Type {
	case "", "gochannel", "kafka":
	default:
		return fmt.Errorf("unknown event bus %q", c.EventBus.Type)
	}

	return nil
}
