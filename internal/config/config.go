package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/roost/pkg/backplane"
)

// Config represents the top-level roost.yml configuration.
type Config struct {
	Version string       `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	Hub     *HubConfig   `yaml:"hub,omitempty"`
	Redis   *RedisConfig `yaml:"redis,omitempty"` // Omit to run local-only (no backplane)
}

// ServerConfig specifies the WebSocket listener.
type ServerConfig struct {
	Listen         string `yaml:"listen"`                    // Required: host:port to bind, e.g. ":8080"
	Path           string `yaml:"path,omitempty"`            // WebSocket endpoint path (default: /ws)
	MaxConnections int    `yaml:"max_connections,omitempty"` // 0 = unlimited
}

// HubConfig specifies engine tuning.
type HubConfig struct {
	Shards int `yaml:"shards,omitempty"` // Lock shards for registry/group maps (default: 16)
}

// RedisConfig specifies the scale-out backplane.
type RedisConfig struct {
	URL      string `yaml:"url"`      // Required: redis:// URL (REDIS_URL env overrides)
	Instance string `yaml:"instance"` // Required: deployment name used to namespace channels
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if c.Server.Path != "" && !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/': %s", c.Server.Path)
	}

	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections cannot be negative: %d", c.Server.MaxConnections)
	}

	if c.Hub != nil && c.Hub.Shards < 0 {
		return fmt.Errorf("hub.shards cannot be negative: %d", c.Hub.Shards)
	}

	if c.Redis != nil {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when redis is configured")
		}
		if err := backplane.ValidateInstanceName(c.Redis.Instance); err != nil {
			return fmt.Errorf("redis.instance: %w", err)
		}
	}

	return nil
}

// EndpointPath returns the WebSocket endpoint path, defaulting to /ws.
func (s ServerConfig) EndpointPath() string {
	if s.Path == "" {
		return "/ws"
	}
	return s.Path
}

// ShardCount returns the configured shard count, or 0 to let the hub apply
// its own default.
func (c *Config) ShardCount() int {
	if c.Hub == nil {
		return 0
	}
	return c.Hub.Shards
}

// Load reads and validates a roost.yml file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
