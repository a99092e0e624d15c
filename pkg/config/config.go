// Package config loads server and client configuration from layered
// sources (flags, environment, YAML file, defaults) using a koanf-based
// precedence chain, and watches the config file for live log-level
// reloads via fsnotify.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix every environment variable override must carry,
// e.g. POCKETREDIS_SERVER_PORT=6379.
const EnvPrefix = "POCKETREDIS_"

// ServerConfig holds every tunable the server binary accepts.
type ServerConfig struct {
	Server struct {
		Port            int           `koanf:"port"`
		MaxConnections  int           `koanf:"max_connections"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"server"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`

	Metrics struct {
		Address string `koanf:"address"` // empty disables the metrics HTTP server
	} `koanf:"metrics"`
}

// DefaultServerConfig returns the configuration a server starts with
// before any file, environment, or flag overrides are layered on.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.Server.Port = 6379
	cfg.Server.MaxConnections = 250
	cfg.Server.IdleTimeout = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Log.Level = "info"
	cfg.Metrics.Address = ""
	return cfg
}

// ClientConfig holds the tunables the CLI binary accepts.
type ClientConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultClientConfig returns the CLI's starting configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{Host: "127.0.0.1", Port: 6379, Timeout: 5 * time.Second}
}

// Loader layers configuration sources with precedence file < env < flag
// overrides (flag overrides are applied separately, after Load, via
// LoadFlags so callers can hand in already-parsed flag.Value results).
type Loader struct {
	k        *koanf.Koanf
	filePath string
}

// NewLoader creates a Loader that will read filePath if non-empty.
func NewLoader(filePath string) *Loader {
	return &Loader{k: koanf.New("."), filePath: filePath}
}

// Load reads the config file (if any) and environment overrides, then
// unmarshals into target. Call LoadFlags afterward to layer flag
// overrides, which take the highest precedence.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("config: load file %s: %w", l.filePath, err)
		}
	}

	envTransform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		// Only the first underscore separates the section from the key, so
		// SERVER_MAX_CONNECTIONS maps to server.max_connections.
		return strings.Replace(s, "_", ".", 1)
	}
	if err := l.k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("config: load env: %w", err)
	}

	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	return nil
}

// LoadFlags layers flag overrides (only the keys present in values) on
// top of whatever Load already produced, then re-unmarshals into target.
func (l *Loader) LoadFlags(values map[string]any, target any) error {
	if len(values) == 0 {
		return nil
	}
	if err := l.k.Load(confmapProvider(values), nil); err != nil {
		return fmt.Errorf("config: load flags: %w", err)
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	return nil
}
