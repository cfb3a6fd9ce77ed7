// Package config handles splitter configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/meshsplit/internal/split"
)

// Config holds all tool settings.
type Config struct {
	Split     SplitConfig     `yaml:"split"`
	Wireframe WireframeConfig `yaml:"wireframe"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SplitConfig holds partitioning settings.
type SplitConfig struct {
	MaxIndex              uint32 `yaml:"max_index"`               // Inclusive index bound
	DisablePostTransform  bool   `yaml:"disable_post_transform"`  // Skip the cache-locality pass
	UnsupportedIndexWidth string `yaml:"unsupported_index_width"` // skip | reject | upgrade
	CacheSize             int    `yaml:"cache_size"`              // Simulated vertex cache entries
	Workers               int    `yaml:"workers"`                 // 0 = GOMAXPROCS
}

// WireframeConfig holds wireframe overlay settings.
type WireframeConfig struct {
	Generate bool `yaml:"generate"` // Build an overlay from triangle edges before splitting
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	File string `yaml:"file"` // Prometheus text file written after a run
}

// Default returns a Config targeting 16-bit index buffers.
func Default() *Config {
	return &Config{
		Split: SplitConfig{
			MaxIndex:              65535,
			DisablePostTransform:  false,
			UnsupportedIndexWidth: split.PolicyUpgrade.String(),
			CacheSize:             32,
			Workers:               0,
		},
		Wireframe: WireframeConfig{
			Generate: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Split.MaxIndex < split.MinBound {
		return fmt.Errorf("split.max_index %d: %w", c.Split.MaxIndex, split.ErrBoundTooSmall)
	}
	if _, err := split.ParsePolicy(c.Split.UnsupportedIndexWidth); err != nil {
		return fmt.Errorf("split.unsupported_index_width: %w", err)
	}
	if c.Split.Workers < 0 {
		return fmt.Errorf("split.workers must not be negative, got %d", c.Split.Workers)
	}
	if c.Split.CacheSize < 0 {
		return fmt.Errorf("split.cache_size must not be negative, got %d", c.Split.CacheSize)
	}
	return nil
}

// SplitOptions converts the split section into splitter options.
func (c *Config) SplitOptions() (split.Options, error) {
	policy, err := split.ParsePolicy(c.Split.UnsupportedIndexWidth)
	if err != nil {
		return split.Options{}, err
	}
	return split.Options{
		MaxIndex:              c.Split.MaxIndex,
		DisablePostTransform:  c.Split.DisablePostTransform,
		UnsupportedIndexWidth: policy,
		CacheSize:             c.Split.CacheSize,
	}, nil
}
