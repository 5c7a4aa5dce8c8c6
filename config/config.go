// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides the optional application configuration for
// budsctl. The plugin documents themselves are handled by the plugin
// package; this covers only ambient settings (log level, extra plugin
// directories, metrics listener).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Plugins PluginsConfig `yaml:"plugins"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error fatal panic"`
}

// PluginsConfig holds additional plugin source directories, read after the
// standard XDG locations.
type PluginsConfig struct {
	ExtraDirs []string `yaml:"extra_dirs" validate:"dive,min=1"`
}

// MetricsConfig holds the optional Prometheus listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Path returns the location of the optional config file:
// $XDG_CONFIG_HOME/budsctl/config.yaml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "budsctl", "config.yaml")
}

// Load reads the optional config file, applies environment variable
// overrides and defaults, and validates the result. A missing file is not
// an error; all settings have defaults.
func Load() (*Config, error) {
	var cfg Config

	path := Path()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the
// configuration.
func (c *Config) applyEnvironmentOverrides() {
	if level := os.Getenv("BUDSCTL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if dir := os.Getenv("BUDSCTL_PLUGIN_DIR"); dir != "" {
		c.Plugins.ExtraDirs = append(c.Plugins.ExtraDirs, dir)
	}
	if addr := os.Getenv("BUDSCTL_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
}

// setDefaults sets default values for configuration fields if not provided.
func (c *Config) setDefaults() {
	if c.Logging.Level == "" {
		// Command output stays clean unless the user asks for more.
		c.Logging.Level = "warn"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
