// Package config loads the YAML configuration of the demo server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poltergeist-framework/hookable/internal/logger"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "HOOKABLE_CONFIG"

// DefaultPath is used when EnvPath is unset.
const DefaultPath = "configs/hookable.yaml"

// Config is the demo server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging logger.Config `yaml:"logging"`
	Hooks   HooksConfig   `yaml:"hooks"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
}

// RateLimit configures the per-client token bucket.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// HooksConfig configures the hookable plugin.
type HooksConfig struct {
	// Debugger is handed to the plugin as is and validated there.
	Debugger map[string]any `yaml:"debugger"`
	// Tokens accepted by the auth:verify hook of the demo
	Tokens []string `yaml:"tokens"`
}

// PathFromEnv returns the config path named by EnvPath or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load parses the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := Parse(content, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Parse decodes YAML into cfg. Unknown fields are rejected.
func Parse(content []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RateLimit.RPS <= 0 {
		c.Server.RateLimit.RPS = 10
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
