// Package config handles tensorgpu configuration via environment variables
// (and, optionally, a YAML file overlay).
//
// Configuration is loaded from environment variables using LoadFromEnv(),
// optionally layered with a YAML file via LoadYAML(), and validated with
// Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables (TENSORGPU_ prefix):
//   - TENSORGPU_DEVICE_INDEX=0
//   - TENSORGPU_DEVICE_ARCH=sm_75
//   - TENSORGPU_DEVICE_INCLUDE_PATHS=/usr/local/cuda/include,/opt/cuda/include
//   - TENSORGPU_COMPILER_ELEMENT_TYPE=f32
//   - TENSORGPU_LOG_LEVEL=info
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all tensorgpu configuration.
type Config struct {
	// Device settings for the target GPU.
	Device DeviceConfig `yaml:"device"`

	// Compiler settings controlling kernel generation.
	Compiler CompilerConfig `yaml:"compiler"`

	// Log settings.
	Log LogConfig `yaml:"log"`
}

// DeviceConfig selects and configures the CUDA device this process targets.
type DeviceConfig struct {
	// Index is the CUDA device ordinal to bind to.
	Index int `yaml:"index"`
	// Arch is the NVRTC compute-capability target, e.g. "sm_75".
	Arch string `yaml:"arch"`
	// IncludePaths are extra -I directories passed to NVRTC.
	IncludePaths []string `yaml:"include_paths"`
}

// CompilerConfig controls how the substitution pass instantiates kernels.
type CompilerConfig struct {
	// ElementType is the dtype every operator factory is built against:
	// "f32" or "f16".
	ElementType string `yaml:"element_type"`
}

// LogConfig controls structured logging verbosity.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
}

// LoadFromEnv loads configuration from environment variables, applying
// defaults for anything unset. LoadFromEnv never fails: an unparseable
// device index falls back to its default, and every other value is taken as
// given, leaving Validate() as the single place configuration errors
// surface.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Device.Index = getEnvInt("TENSORGPU_DEVICE_INDEX", 0)
	cfg.Device.Arch = getEnv("TENSORGPU_DEVICE_ARCH", "sm_75")
	cfg.Device.IncludePaths = getEnvStringSlice("TENSORGPU_DEVICE_INCLUDE_PATHS", nil)

	cfg.Compiler.ElementType = getEnv("TENSORGPU_COMPILER_ELEMENT_TYPE", "f32")

	cfg.Log.Level = getEnv("TENSORGPU_LOG_LEVEL", "info")

	return cfg
}

// LoadYAML loads configuration from a YAML file at path, using LoadFromEnv's
// defaults (and any already-set environment variables) as the base and
// letting the file override them field by field.
func LoadYAML(path string) (*Config, error) {
	cfg := LoadFromEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for logical errors and invalid values.
// Call Validate() after LoadFromEnv()/LoadYAML() and before using the
// Config.
func (c *Config) Validate() error {
	if c.Device.Index < 0 {
		return fmt.Errorf("config: invalid device index: %d", c.Device.Index)
	}
	if c.Device.Arch == "" {
		return fmt.Errorf("config: device arch must not be empty")
	}
	switch c.Compiler.ElementType {
	case "f32", "f16":
	default:
		return fmt.Errorf("config: unsupported compiler element type %q (want f32 or f16)", c.Compiler.ElementType)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unsupported log level %q", c.Log.Level)
	}
	return nil
}

// String returns a string representation of the Config suitable for
// logging at startup.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Device: %d/%s, ElementType: %s, LogLevel: %s}",
		c.Device.Index, c.Device.Arch, c.Compiler.ElementType, c.Log.Level,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}
