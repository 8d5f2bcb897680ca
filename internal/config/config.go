package config

import (
	"fmt"
	"time"
)

// Config holds all boolbin configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Expiry   ExpiryConfig   `toml:"expiry"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ExpiryConfig sets the two decay knobs: how long a cell survives without a
// write, and how often the background gravity sweep runs.
type ExpiryConfig struct {
	IdleDays     int `toml:"idle_days"`     // idle TTL; a write resets the clock
	SweepMinutes int `toml:"sweep_minutes"` // gravity sweep period
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Expiry: ExpiryConfig{
			IdleDays:     30,
			SweepMinutes: 10,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// IdleTTL returns the idle-expiry threshold as a duration.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Expiry.IdleDays) * 24 * time.Hour
}

// SweepInterval returns the gravity-sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Expiry.SweepMinutes) * time.Minute
}
