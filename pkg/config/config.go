// Package config loads and validates kennyfsd's on-disk configuration.
//
// Configuration is read with viper (YAML on disk, KENNYFSD_-prefixed
// environment overrides), decoded into Config via mapstructure, and checked
// with go-playground/validator before the server starts.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/hraban/kennyfs/internal/bytesize"
)

// ServerConfig controls the event-loop listener.
type ServerConfig struct {
	ListenPort  int    `mapstructure:"listen_port" validate:"required,min=1,max=65535"`
	IdleTimeout string `mapstructure:"idle_timeout" validate:"omitempty"`
}

// RingConfig sizes the per-connection RX/TX ring buffers.
type RingConfig struct {
	BufCap bytesize.ByteSize `mapstructure:"buf_cap" validate:"required"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	Color  bool   `mapstructure:"color"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"required_if=Enabled true,omitempty,min=1,max=65535"`
}

// BackendConfig selects and configures the filesystem backend the server
// dispatches operations to.
type BackendConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

// Config is the full decoded configuration tree.
type Config struct {
	SOP     string        `mapstructure:"sop" validate:"required"`
	Server  ServerConfig  `mapstructure:"server"`
	Ring    RingConfig    `mapstructure:"ring"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Backend BackendConfig `mapstructure:"backend"`
}

var validate = validator.New()

// Load reads path (YAML), applies KENNYFSD_-prefixed environment overrides,
// fills in defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KENNYFSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		bytesize.DecodeHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("sop", "KFS1")
	v.SetDefault("server.listen_port", 7734)
	v.SetDefault("server.idle_timeout", "0s")
	v.SetDefault("ring.buf_cap", "64KiB")
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.color", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}
