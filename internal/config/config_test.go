package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roost.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
server:
  listen: ":8080"
  path: "/hub"
  max_connections: 500
hub:
  shards: 32
redis:
  url: "redis://localhost:6379"
  instance: "prod-1"
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, ":8080", config.Server.Listen)
	assert.Equal(t, "/hub", config.Server.EndpointPath())
	assert.Equal(t, 500, config.Server.MaxConnections)
	assert.Equal(t, 32, config.ShardCount())
	require.NotNil(t, config.Redis)
	assert.Equal(t, "prod-1", config.Redis.Instance)
}

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
server:
  listen: ":8080"
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/ws", config.Server.EndpointPath())
	assert.Equal(t, 0, config.ShardCount())
	assert.Nil(t, config.Redis)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/roost.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
server:
  - this is invalid
    yaml syntax
`)

	config, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Version: "1.0",
			Server:  ServerConfig{Listen: ":8080"},
		}
	}

	t.Run("accepts valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects wrong version", func(t *testing.T) {
		c := valid()
		c.Version = "2.0"
		assert.ErrorContains(t, c.Validate(), "unsupported version")
	})

	t.Run("rejects missing listen address", func(t *testing.T) {
		c := valid()
		c.Server.Listen = ""
		assert.ErrorContains(t, c.Validate(), "server.listen")
	})

	t.Run("rejects path without leading slash", func(t *testing.T) {
		c := valid()
		c.Server.Path = "ws"
		assert.ErrorContains(t, c.Validate(), "server.path")
	})

	t.Run("rejects negative max_connections", func(t *testing.T) {
		c := valid()
		c.Server.MaxConnections = -1
		assert.Error(t, c.Validate())
	})

	t.Run("rejects redis without url", func(t *testing.T) {
		c := valid()
		c.Redis = &RedisConfig{Instance: "prod-1"}
		assert.ErrorContains(t, c.Validate(), "redis.url")
	})

	t.Run("rejects invalid instance name", func(t *testing.T) {
		c := valid()
		c.Redis = &RedisConfig{URL: "redis://localhost:6379", Instance: "Bad Name"}
		assert.ErrorContains(t, c.Validate(), "redis.instance")
	})
}
