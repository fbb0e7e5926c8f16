/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the protodemo configuration
type Config struct {
	Broker    Broker    `yaml:"broker"`
	Server    Server    `yaml:"server"`
	Publisher Publisher `yaml:"publisher"`
	Storage   Storage   `yaml:"storage"`
	Logging   Logging   `yaml:"logging"`
}

// Broker contains the message broker connection settings
type Broker struct {
	URL            string        `yaml:"url"`
	Topic          string        `yaml:"topic"`
	WSPath         string        `yaml:"ws_path"`
	ClientID       string        `yaml:"client_id,omitempty"`
	Username       string        `yaml:"username,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	QoS            int           `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// Server contains the HTTP surface settings
type Server struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Publisher contains the random publisher settings
type Publisher struct {
	Interval time.Duration `yaml:"interval"`
	Names    []string      `yaml:"names"`
	MaxID    int32         `yaml:"max_id"`
}

// Storage contains the message history settings
type Storage struct {
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir"`
	RedisURL   string `yaml:"redis_url,omitempty"`
	RedisKey   string `yaml:"redis_key,omitempty"`
	MaxEntries int    `yaml:"max_entries"`
}

// Logging contains logging configuration
type Logging struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file,omitempty"`
	MaxSizeKB int64  `yaml:"max_size_kb"`
	MaxRolls  int    `yaml:"max_rolls"`
}

// DefaultConfig returns a default configuration pointing at a local
// RabbitMQ with the Web MQTT plugin enabled
func DefaultConfig() *Config {
	return &Config{
		Broker: Broker{
			URL:            "ws://localhost:15675/ws",
			Topic:          "mqtt/proto/demo",
			WSPath:         "/ws",
			QoS:            0,
			Retain:         false,
			ConnectTimeout: 10 * time.Second,
			KeepAlive:      30 * time.Second,
		},
		Server: Server{
			Bind: "127.0.0.1",
			Port: 8080,
		},
		Publisher: Publisher{
			Interval: time.Second,
			Names:    []string{"alice", "bob", "carol", "dave"},
			MaxID:    1000,
		},
		Storage: Storage{
			Backend:    "pebble",
			DataDir:    "./data",
			MaxEntries: 1000,
		},
		Logging: Logging{
			Level:     "info",
			MaxSizeKB: 10 * 1024,
			MaxRolls:  3,
		},
	}
}

// Validate checks values the rest of the program relies on
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if c.Broker.Topic == "" {
		return fmt.Errorf("broker.topic is required")
	}
	if strings.ContainsAny(c.Broker.Topic, "+#") {
		return fmt.Errorf("broker.topic must not contain wildcards: %q", c.Broker.Topic)
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		return fmt.Errorf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Publisher.Interval < 0 {
		return fmt.Errorf("publisher.interval must not be negative")
	}
	if c.Publisher.MaxID < 0 {
		return fmt.Errorf("publisher.max_id must not be negative")
	}
	if len(c.Publisher.Names) == 0 {
		return fmt.Errorf("publisher.names must not be empty")
	}
	if c.Storage.MaxEntries < 0 {
		return fmt.Errorf("storage.max_entries must not be negative")
	}
	return nil
}

// LoadConfig loads configuration from the specified path. Keys missing
// from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure
// permissions, since it may hold broker credentials
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// BootstrapConfig writes a default configuration to configPath, using
// dataDir for the message history when given
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.Storage.DataDir = dataDir
	}

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./protodemo.yaml"
	}

	// For Linux/macOS, use ~/.config/protodemo/config.yaml
	configDir := filepath.Join(homeDir, ".config", "protodemo")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
