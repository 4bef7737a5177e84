// Package config loads daemon and CLI settings from a YAML config file,
// environment variables, and built-in defaults, in that order of
// precedence from lowest to highest.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds the resolved settings for the gantry daemon and CLI.
type Config struct {
	// Host and Port are the frontend bind address.
	Host string
	Port int

	// DataDir is the root for persisted graphs.
	DataDir string

	// WorkDir is the working directory for spawned agent processes. Empty
	// means inherit the daemon's.
	WorkDir string

	// PollInterval is how often the driver sweeps incomplete graphs.
	PollInterval time.Duration

	Debug     bool
	Quiet     bool
	LogFormat string

	// ConfigFileUsed is the config file that was actually read, if any.
	ConfigFileUsed string

	// Warnings collects non-fatal issues found while loading.
	Warnings []string
}

// Addr returns the frontend listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logFormat: %q", c.LogFormat)
	}
	return nil
}
