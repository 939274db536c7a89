// Package config handles popbuf configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Faultbox/popbuffer/internal/logger"
	"github.com/Faultbox/popbuffer/pkg/popbuffer"
	"github.com/Faultbox/popbuffer/pkg/quantize"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatPOB  = "pob"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid config")

// Config holds all popbuf settings.
type Config struct {
	Encode  EncodeConfig  `yaml:"encode" toml:"encode"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// EncodeConfig holds encoder settings.
type EncodeConfig struct {
	MaxLevel int    `yaml:"max_level" toml:"max_level"`
	Assigner string `yaml:"assigner" toml:"assigner"` // prefix or rescan
	Workers  int    `yaml:"workers" toml:"workers"`   // <0 uses GOMAXPROCS
}

// OutputConfig holds settings for written buffers.
type OutputConfig struct {
	Format   string `yaml:"format" toml:"format"`
	Compress bool   `yaml:"compress" toml:"compress"`
	Dir      string `yaml:"dir" toml:"dir"` // empty writes next to the input
}

// WatchConfig holds settings for the watch command.
type WatchConfig struct {
	Dir        string `yaml:"dir" toml:"dir"`
	Pattern    string `yaml:"pattern" toml:"pattern"`
	DebounceMS int    `yaml:"debounce_ms" toml:"debounce_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	LogFile    string `yaml:"log_file" toml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Encode: EncodeConfig{
			MaxLevel: 16,
			Assigner: popbuffer.PrefixAssigner{}.Name(),
			Workers:  1,
		},
		Output: OutputConfig{
			Format:   FormatPOB,
			Compress: true,
		},
		Watch: WatchConfig{
			Dir:        ".",
			Pattern:    "*.json",
			DebounceMS: 100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Encode.MaxLevel < 1 || c.Encode.MaxLevel > quantize.MaxBits {
		return fmt.Errorf("%w: max_level %d outside [1, %d]", ErrInvalid, c.Encode.MaxLevel, quantize.MaxBits)
	}
	if _, err := popbuffer.Lookup(c.Encode.Assigner); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Output.Format {
	case FormatJSON, FormatPOB:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output.Format)
	}
	if _, err := filepath.Match(c.Watch.Pattern, ""); err != nil {
		return fmt.Errorf("%w: watch pattern %q: %w", ErrInvalid, c.Watch.Pattern, err)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("%w: negative debounce_ms", ErrInvalid)
	}
	return nil
}

// File returns the rotating file settings for the logger.
func (l LoggingConfig) File() logger.FileConfig {
	if l.LogFile == "" {
		return logger.FileConfig{}
	}
	fc := logger.DefaultFileConfig(l.LogFile)
	if l.MaxSizeMB > 0 {
		fc.MaxSizeMB = l.MaxSizeMB
	}
	if l.MaxBackups > 0 {
		fc.MaxBackups = l.MaxBackups
	}
	if l.MaxAgeDays > 0 {
		fc.MaxAgeDays = l.MaxAgeDays
	}
	return fc
}
