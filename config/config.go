// Package config loads server configuration from a TOML file.
//
// Every field has a sensible default, so the server runs with no config
// file at all. Flags in cmd/server override whatever the file says.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StorageConfig covers the database.
type StorageConfig struct {
	// Path is the SQLite file. ":memory:" runs fully in-memory.
	Path string `toml:"path"`
}

// DefaultConfig returns the defaults used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Path: "./payout.db",
		},
	}
}

// Load reads path and overlays it on the defaults. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
