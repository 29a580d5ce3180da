package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	units "github.com/docker/go-units"
	coretypes "github.com/projecteru2/core/types"
)

const (
	defaultRootDir         = "/var/lib/pkginst"
	defaultMaxDownloadSize = "20GiB"
	defaultHTTPTimeout     = 30 * time.Minute
	defaultInterval        = 200 * time.Millisecond
)

// Config holds global pkginst configuration.
type Config struct {
	// RootDir is the base directory for indexes, staging and package content.
	RootDir string `json:"root_dir" mapstructure:"root_dir"`
	// PoolSize bounds concurrent work inside a backend (layer extraction).
	// Defaults to runtime.NumCPU() if zero.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// Workers is the number of installer worker goroutines.
	Workers int `json:"workers" mapstructure:"workers"`
	// DefaultHost is used for packages added without a host reference.
	DefaultHost string `json:"default_host" mapstructure:"default_host"`
	// ProgressInterval is how often overall progress is sampled.
	ProgressInterval time.Duration `json:"progress_interval" mapstructure:"progress_interval"`
	// HTTPTimeout bounds a single metadata or archive transfer.
	HTTPTimeout time.Duration `json:"http_timeout" mapstructure:"http_timeout"`
	// MaxDownloadSize caps one archive, in go-units notation ("20GiB").
	MaxDownloadSize string `json:"max_download_size" mapstructure:"max_download_size"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:          defaultRootDir,
		PoolSize:         runtime.NumCPU(),
		Workers:          1,
		ProgressInterval: defaultInterval,
		HTTPTimeout:      defaultHTTPTimeout,
		MaxDownloadSize:  defaultMaxDownloadSize,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads a JSON config file over the defaults. A missing file is
// not an error.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return conf, conf.Normalize()
}

// Normalize fills zero values left by a partial config and validates the
// size limit.
func (c *Config) Normalize() error {
	if c.RootDir == "" {
		c.RootDir = defaultRootDir
	}
	if c.PoolSize <= 0 {
		c.PoolSize = runtime.NumCPU()
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.MaxDownloadSize == "" {
		c.MaxDownloadSize = defaultMaxDownloadSize
	}
	if _, err := c.MaxDownloadBytes(); err != nil {
		return err
	}
	return nil
}

// MaxDownloadBytes parses MaxDownloadSize.
func (c *Config) MaxDownloadBytes() (int64, error) {
	n, err := units.RAMInBytes(c.MaxDownloadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_download_size %q: %w", c.MaxDownloadSize, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid max_download_size %q: must be positive", c.MaxDownloadSize)
	}
	return n, nil
}
