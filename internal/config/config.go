// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/pcapmerge/internal/core"
)

// Limits shared with the capture reader.
const (
	MaxSnapLen       = 65535
	DefaultChunkSize = 4096
)

// GlobalConfig represents the top-level configuration.
// Maps to the `pcapmerge:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`     // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern" yaml:"pattern"` // %time %level %field %msg
	Time    string           `mapstructure:"time" yaml:"time"`       // Go time layout
	File    FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Input / Output ───

// InputConfig controls how capture files are read.
type InputConfig struct {
	// ChunkSize is the size of the compressed input chunk and the
	// decompressed output chunk of gzip/xz byte sources.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// OutputConfig controls merged capture output and inspect rendering.
type OutputConfig struct {
	SnapLen    int    `mapstructure:"snaplen" yaml:"snaplen"`
	Nanosecond bool   `mapstructure:"nanosecond" yaml:"nanosecond"`
	Format     string `mapstructure:"format" yaml:"format"` // text / yaml
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Textfile, when set, receives the counters in text exposition format
	// after a command finishes.
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// ─── Loading ───

type configRoot struct {
	PcapMerge GlobalConfig `mapstructure:"pcapmerge"`
}

// Load loads configuration from file. An empty path yields defaults merged
// with environment overrides (PCAPMERGE_ prefix, e.g. PCAPMERGE_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "pcapmerge.log.level" → env "PCAPMERGE_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.PcapMerge

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		// Defaults are static; a failure here means the defaults themselves are wrong.
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for configuration.
// All keys use the "pcapmerge." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pcapmerge.log.level", "info")
	v.SetDefault("pcapmerge.log.pattern", "%time [%level] %msg %field")
	v.SetDefault("pcapmerge.log.time", "2006-01-02 15:04:05")
	v.SetDefault("pcapmerge.log.file.enabled", false)
	v.SetDefault("pcapmerge.log.file.path", "/var/log/pcapmerge/pcapmerge.log")
	v.SetDefault("pcapmerge.log.file.rotation.max_size_mb", 100)
	v.SetDefault("pcapmerge.log.file.rotation.max_age_days", 30)
	v.SetDefault("pcapmerge.log.file.rotation.max_backups", 5)
	v.SetDefault("pcapmerge.log.file.rotation.compress", true)

	// Input defaults
	v.SetDefault("pcapmerge.input.chunk_size", DefaultChunkSize)

	// Output defaults
	v.SetDefault("pcapmerge.output.snaplen", MaxSnapLen)
	v.SetDefault("pcapmerge.output.nanosecond", false)
	v.SetDefault("pcapmerge.output.format", "text")

	// Metrics defaults
	v.SetDefault("pcapmerge.metrics.textfile", "")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Pattern == "" {
		cfg.Log.Pattern = "%time [%level] %msg %field"
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("%w: log.file.path is required when log.file.enabled=true", core.ErrConfigInvalid)
	}

	// ── Input validation ──
	if cfg.Input.ChunkSize <= 0 {
		return fmt.Errorf("%w: input.chunk_size must be positive, got %d", core.ErrConfigInvalid, cfg.Input.ChunkSize)
	}

	// ── Output validation ──
	if cfg.Output.SnapLen <= 0 || cfg.Output.SnapLen > MaxSnapLen {
		return fmt.Errorf("%w: output.snaplen must be in 1..%d, got %d", core.ErrConfigInvalid, MaxSnapLen, cfg.Output.SnapLen)
	}
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	if cfg.Output.Format != "text" && cfg.Output.Format != "yaml" {
		return fmt.Errorf("%w: invalid output format: %s (must be text/yaml)", core.ErrConfigInvalid, cfg.Output.Format)
	}

	return nil
}
