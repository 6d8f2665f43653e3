// Package config provides the configuration structure for the tts-server.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// EnvPort is the environment variable that overrides the configured HTTP
// port.
const EnvPort = "TTS_SERVER_PORT"

// DefaultPort is used when neither the configuration nor the environment
// selects a port.
const DefaultPort = 3001

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	AllowedOrigin string `toml:"allowed_origin"`
}

// ModelConfig holds the configuration for locating and running the synthesis
// model.
type ModelConfig struct {
	ID         string `toml:"id"`
	Bucket     string `toml:"bucket"`
	NATSURL    string `toml:"nats_url"`
	CacheDir   string `toml:"cache_dir"`
	BinaryPath string `toml:"binary_path"`
}

// SynthesisConfig holds per-request synthesis policy.
type SynthesisConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Model     ModelConfig     `toml:"model"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the tts-server.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}

// ResolvePort returns the port the HTTP server should listen on. The
// TTS_SERVER_PORT environment variable takes precedence over the configured
// value; when both are unset, DefaultPort is used.
func (c *Config) ResolvePort() int {
	if raw := os.Getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err == nil && port > 0 {
			return port
		}
	}

	if c.Server.Port > 0 {
		return c.Server.Port
	}

	return DefaultPort
}
