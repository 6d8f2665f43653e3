// Package config_test tests the configuration loading for the tts-server.
package config_test

import (
	"testing"

	"github.com/book-expert/tts-server/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[server]
host = "127.0.0.1"
port = 3001
allowed_origin = "http://localhost:3000"

[model]
id = "csm-1b.safetensors"
bucket = "MODEL_WEIGHTS"
nats_url = "nats://127.0.0.1:4222"
cache_dir = "/var/cache/tts-server"
binary_path = "/usr/local/bin/csm-generate"

[synthesis]
timeout_seconds = 120

[paths]
base_logs_dir = "/var/log/tts-server"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, "http://localhost:3000", cfg.Server.AllowedOrigin)
	assert.Equal(t, "csm-1b.safetensors", cfg.Model.ID)
	assert.Equal(t, "MODEL_WEIGHTS", cfg.Model.Bucket)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Model.NATSURL)
	assert.Equal(t, "/var/cache/tts-server", cfg.Model.CacheDir)
	assert.Equal(t, "/usr/local/bin/csm-generate", cfg.Model.BinaryPath)
	assert.Equal(t, 120, cfg.Synthesis.TimeoutSeconds)
	assert.Equal(t, "/var/log/tts-server", cfg.Paths.BaseLogsDir)
}

func TestResolvePort_EnvironmentOverride(t *testing.T) {
	t.Setenv(config.EnvPort, "4500")

	cfg := config.Config{}
	cfg.Server.Port = 3001

	assert.Equal(t, 4500, cfg.ResolvePort())
}

func TestResolvePort_ConfiguredValue(t *testing.T) {
	t.Setenv(config.EnvPort, "")

	cfg := config.Config{}
	cfg.Server.Port = 9000

	assert.Equal(t, 9000, cfg.ResolvePort())
}

func TestResolvePort_Default(t *testing.T) {
	t.Setenv(config.EnvPort, "")

	cfg := config.Config{}

	assert.Equal(t, config.DefaultPort, cfg.ResolvePort())
}

func TestResolvePort_InvalidEnvironmentFallsBack(t *testing.T) {
	t.Setenv(config.EnvPort, "not-a-port")

	cfg := config.Config{}
	cfg.Server.Port = 3001

	assert.Equal(t, 3001, cfg.ResolvePort())
}
