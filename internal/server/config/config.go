// Package config loads the server's runtime configuration from defaults,
// an optional YAML file, and LEXKEY_-prefixed environment variables, in
// that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LEXKEY_"

// Config holds the server's runtime configuration.
type Config struct {
	Addr             string `koanf:"addr"`              // Listen address (e.g. ":4580")
	DataDir          string `koanf:"data_dir"`          // Data directory for the database
	LogLevel         string `koanf:"log_level"`         // debug, info, warn, error
	CompactThreshold int    `koanf:"compact_threshold"` // Key length that makes a list eligible for compaction
}

// Load builds a Config. path names an optional YAML config file; when empty
// only defaults and environment variables apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := confmap.Provider(map[string]interface{}{
		"addr":              ":4580",
		"data_dir":          defaultDataDir(),
		"log_level":         "info",
		"compact_threshold": 32,
	}, ".")
	if err := k.Load(defaults, nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// LEXKEY_DATA_DIR -> data_dir
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration values and ensures the data directory
// exists.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.CompactThreshold < 2 {
		return fmt.Errorf("compact_threshold must be at least 2")
	}

	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	return nil
}

// DBPath returns the path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "lexkey.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "lexkey")
	}
	return filepath.Join(home, ".config", "lexkey")
}
