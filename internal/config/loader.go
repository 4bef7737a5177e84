package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/gantry-org/gantry/internal/build"
)

const defaultPollInterval = 2 * time.Second

// Loader reads and merges configuration from file, environment, and
// defaults.
type Loader struct {
	v          *viper.Viper
	configFile string
	homeDir    string
	warnings   []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit config file path, skipping discovery.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.configFile = path
	}
}

// WithHomeDir overrides the application home directory, normally taken
// from the GANTRY_HOME environment variable.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// NewLoader creates a Loader with the given options.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{v: viper.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves the configuration. A missing config file is not an error;
// defaults and environment variables still apply.
func (l *Loader) Load() (*Config, error) {
	home := l.homeDir
	if home == "" {
		home = os.Getenv(strings.ToUpper(build.Slug) + "_HOME")
	}

	configDir, dataDir := l.resolveDirs(home)
	l.setDefaults(dataDir)
	l.configureViper(configDir)

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	pollInterval, err := time.ParseDuration(l.v.GetString("poll-interval"))
	if err != nil {
		l.warnings = append(l.warnings,
			fmt.Sprintf("invalid poll-interval %q, using default", l.v.GetString("poll-interval")))
		pollInterval = defaultPollInterval
	}

	cfg := &Config{
		Host:           l.v.GetString("host"),
		Port:           l.v.GetInt("port"),
		DataDir:        l.v.GetString("data-dir"),
		WorkDir:        l.v.GetString("work-dir"),
		PollInterval:   pollInterval,
		Debug:          l.v.GetBool("debug"),
		Quiet:          l.v.GetBool("quiet"),
		LogFormat:      l.v.GetString("log-format"),
		ConfigFileUsed: l.v.ConfigFileUsed(),
		Warnings:       l.warnings,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveDirs picks the config and data directories. A non-empty home
// directory puts both under it; otherwise XDG conventions apply.
func (l *Loader) resolveDirs(home string) (configDir, dataDir string) {
	if home != "" {
		return home, filepath.Join(home, "data")
	}
	return filepath.Join(xdg.ConfigHome, build.Slug),
		filepath.Join(xdg.DataHome, build.Slug)
}

func (l *Loader) setDefaults(dataDir string) {
	l.v.SetDefault("host", "127.0.0.1")
	l.v.SetDefault("port", 8320)
	l.v.SetDefault("data-dir", dataDir)
	l.v.SetDefault("work-dir", "")
	l.v.SetDefault("poll-interval", defaultPollInterval.String())
	l.v.SetDefault("debug", false)
	l.v.SetDefault("quiet", false)
	l.v.SetDefault("log-format", "text")
}

func (l *Loader) configureViper(configDir string) {
	if l.configFile == "" {
		l.v.AddConfigPath(configDir)
		l.v.SetConfigName("config")
	} else {
		l.v.SetConfigFile(l.configFile)
	}
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(build.Slug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	l.v.AutomaticEnv()
}
