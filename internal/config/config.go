// Package config loads and validates rdistcc's process configuration,
// following a DefaultConfig/LoadConfig/SaveConfig/Validate shape
// generalized from build environments to host lists and dispatch tuning
// knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration for both the dispatch CLI
// and the reference server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Hosts    HostsConfig    `yaml:"hosts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the reference compile server (internal/server).
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPAddr   string `yaml:"http_addr"`
	Capacity   int    `yaml:"capacity"`
	Compress   bool   `yaml:"compress"`
}

// DispatchConfig tunes the client-side dispatch engine.
type DispatchConfig struct {
	TempDir      string `yaml:"temp_dir"`
	TempDeletion bool   `yaml:"temp_deletion"`
	LockDir      string `yaml:"lock_dir"`
}

// HostsConfig points at the candidate-host list consumed by
// internal/hostdef.LoadList.
type HostsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls internal/observability's Logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":3632",
			HTTPAddr:   ":3633",
			Capacity:   4,
			Compress:   false,
		},
		Dispatch: DispatchConfig{
			TempDir:      "",
			TempDeletion: true,
			LockDir:      filepath.Join(os.TempDir(), "rdistcc-locks"),
		},
		Hosts: HostsConfig{
			Path: "hosts.yaml",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating one with
// defaults if it does not exist, then applies an RDISTCC_*-prefixed
// environment overlay on top via Viper — for container deployments of the
// server binary that don't want a mounted config file for simple
// overrides.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		if err := SaveConfig(config, filename); err != nil {
			return nil, fmt.Errorf("config: create default config file: %w", err)
		}
		applyEnvOverlay(config)
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: parse config file: %w", err)
	}

	applyEnvOverlay(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnvOverlay overrides individual fields from RDISTCC_-prefixed
// environment variables (e.g. RDISTCC_SERVER_LISTEN_ADDR), using Viper's
// automatic-env lookup rather than a hand-rolled os.Getenv table.
func applyEnvOverlay(config *Config) {
	v := viper.New()
	v.SetEnvPrefix("RDISTCC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if s := v.GetString("server.listen_addr"); s != "" {
		config.Server.ListenAddr = s
	}
	if s := v.GetString("server.http_addr"); s != "" {
		config.Server.HTTPAddr = s
	}
	if v.IsSet("server.capacity") {
		if n := v.GetInt("server.capacity"); n > 0 {
			config.Server.Capacity = n
		}
	}
	if s := v.GetString("dispatch.temp_dir"); s != "" {
		config.Dispatch.TempDir = s
	}
	if s := v.GetString("dispatch.lock_dir"); s != "" {
		config.Dispatch.LockDir = s
	}
	if s := v.GetString("hosts.path"); s != "" {
		config.Hosts.Path = s
	}
	if s := v.GetString("logging.level"); s != "" {
		config.Logging.Level = s
	}
}

// SaveConfig writes config to filename as YAML, creating parent
// directories as needed.
func SaveConfig(config *Config, filename string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.Server.Capacity <= 0 {
		return fmt.Errorf("config: invalid server capacity: %d", c.Server.Capacity)
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server listen_addr must not be empty")
	}
	if c.Hosts.Path == "" {
		return fmt.Errorf("config: hosts.path must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "info", "debug":
	default:
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
	return nil
}

// GetTempDir returns the configured temp directory, or the system default
// if unset.
func (c *Config) GetTempDir() string {
	if c.Dispatch.TempDir != "" {
		return c.Dispatch.TempDir
	}
	return os.TempDir()
}
