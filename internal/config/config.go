// Package config provides configuration management for the gstfs mount.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ajaxzhan/gstfs/internal/transcode"
	"github.com/ajaxzhan/gstfs/pkg/types"
)

// Engine names accepted in TranscoderConfig.Engine.
const (
	EngineGStreamer = "gstreamer"
	EngineMP3WAV    = "mp3wav"
)

// Config represents the complete gstfs configuration.
type Config struct {
	Mount      MountConfig      `yaml:"mount"`
	Cache      CacheConfig      `yaml:"cache"`
	Transcoder TranscoderConfig `yaml:"transcoder"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MountConfig holds what is mirrored and how it is presented.
type MountConfig struct {
	SourceDir  string `yaml:"source_dir"`
	MountPoint string `yaml:"mount_point"`
	SourceExt  string `yaml:"source_ext"`
	TargetExt  string `yaml:"target_ext"`
	Pipeline   string `yaml:"pipeline"`
	AllowOther bool   `yaml:"allow_other"`
	Debug      bool   `yaml:"debug"`
}

// CacheConfig holds cache bounds.
type CacheConfig struct {
	MaxEntries    int   `yaml:"max_entries"`
	MaxEntryBytes int64 `yaml:"max_entry_bytes"`
}

// TranscoderConfig selects and configures the transcoding engine.
type TranscoderConfig struct {
	Engine        string `yaml:"engine"`
	GstLaunchPath string `yaml:"gst_launch_path"`
	Timeout       string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxEntries: types.DefaultMaxCacheEntries,
		},
		Transcoder: TranscoderConfig{
			Engine:        EngineGStreamer,
			GstLaunchPath: "gst-launch-1.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadOrDefault loads configuration from a file, or returns default if file doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// GetTimeout returns the transcode timeout. Zero means no deadline.
func (c *TranscoderConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Normalize strips leading dots from extensions, makes the source
// directory absolute and applies the cache default.
func (c *Config) Normalize() error {
	c.Mount.SourceExt = strings.TrimPrefix(c.Mount.SourceExt, ".")
	c.Mount.TargetExt = strings.TrimPrefix(c.Mount.TargetExt, ".")

	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = types.DefaultMaxCacheEntries
	}
	if c.Transcoder.Engine == "" {
		c.Transcoder.Engine = EngineGStreamer
	}

	if c.Mount.SourceDir != "" && !filepath.IsAbs(c.Mount.SourceDir) {
		abs, err := filepath.Abs(c.Mount.SourceDir)
		if err != nil {
			return fmt.Errorf("failed to resolve source directory: %w", err)
		}
		c.Mount.SourceDir = abs
	}
	return nil
}

// Validate checks that the configuration describes a mountable mirror.
func (c *Config) Validate() error {
	m := c.Mount
	if m.SourceDir == "" {
		return &types.ConfigError{Field: "mount.source_dir", Reason: "required"}
	}
	info, err := os.Stat(m.SourceDir)
	if err != nil {
		return &types.ConfigError{Field: "mount.source_dir", Reason: err.Error()}
	}
	if !info.IsDir() {
		return &types.ConfigError{Field: "mount.source_dir", Reason: "not a directory"}
	}

	if m.SourceExt == "" {
		return &types.ConfigError{Field: "mount.source_ext", Reason: "required"}
	}
	if m.TargetExt == "" {
		return &types.ConfigError{Field: "mount.target_ext", Reason: "required"}
	}
	if strings.ContainsAny(m.SourceExt, "./") {
		return &types.ConfigError{Field: "mount.source_ext", Reason: "must be a single suffix"}
	}
	if strings.ContainsAny(m.TargetExt, "./") {
		return &types.ConfigError{Field: "mount.target_ext", Reason: "must be a single suffix"}
	}
	if m.SourceExt == m.TargetExt {
		return &types.ConfigError{Field: "mount.target_ext", Reason: "must differ from source_ext"}
	}

	switch c.Transcoder.Engine {
	case EngineGStreamer:
		if m.Pipeline == "" {
			return &types.ConfigError{Field: "mount.pipeline", Reason: "required by the gstreamer engine"}
		}
		if _, err := transcode.SplitPipeline(m.Pipeline); err != nil {
			return &types.ConfigError{Field: "mount.pipeline", Reason: err.Error()}
		}
	case EngineMP3WAV:
	default:
		return &types.ConfigError{Field: "transcoder.engine", Reason: fmt.Sprintf("unknown engine %q", c.Transcoder.Engine)}
	}

	if c.Cache.MaxEntries < 0 {
		return &types.ConfigError{Field: "cache.max_entries", Reason: "must be positive"}
	}
	if c.Cache.MaxEntryBytes < 0 {
		return &types.ConfigError{Field: "cache.max_entry_bytes", Reason: "must not be negative"}
	}
	if c.Transcoder.Timeout != "" {
		if _, err := time.ParseDuration(c.Transcoder.Timeout); err != nil {
			return &types.ConfigError{Field: "transcoder.timeout", Reason: err.Error()}
		}
	}
	return nil
}

// MountConfig returns the immutable mount configuration handed to the
// filesystem. Call it after Normalize and Validate.
func (c *Config) MountConfig() types.MountConfig {
	return types.MountConfig{
		SourceDir:       c.Mount.SourceDir,
		SourceExt:       c.Mount.SourceExt,
		TargetExt:       c.Mount.TargetExt,
		Pipeline:        c.Mount.Pipeline,
		MaxCacheEntries: c.Cache.MaxEntries,
		MaxEntryBytes:   c.Cache.MaxEntryBytes,
	}
}
