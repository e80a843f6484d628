package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (DISKCONV_CONNECTION_URI, ...)
const EnvPrefix = "DISKCONV"

// Config represents the diskconv configuration
type Config struct {
	Connection Connection `mapstructure:"connection"`
	Converter  Converter  `mapstructure:"converter"`
	Defaults   Defaults   `mapstructure:"defaults"`
	Logging    Logging    `mapstructure:"logging"`
}

// Connection describes how to reach the libvirt daemon
type Connection struct {
	URI     string `mapstructure:"uri"`
	Socket  string `mapstructure:"socket"`
	Timeout string `mapstructure:"timeout"`
}

// Converter configures the external image conversion tool
type Converter struct {
	Binary string `mapstructure:"binary"`
}

// Defaults contains default values for conversion runs
type Defaults struct {
	Format          string `mapstructure:"format"`
	AppendExtension *bool  `mapstructure:"append_extension"`
	KeepOwnership   *bool  `mapstructure:"keep_ownership"`
	KeepPermissions *bool  `mapstructure:"keep_permissions"`
}

// Logging configures the structured logger
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ShouldAppendExtension returns whether destination paths get the format extension.
// Defaults to false when not explicitly set.
func (d *Defaults) ShouldAppendExtension() bool {
	return d.AppendExtension != nil && *d.AppendExtension
}

// ShouldKeepOwnership returns whether source ownership is restored on converted images.
func (d *Defaults) ShouldKeepOwnership() bool {
	return d.KeepOwnership != nil && *d.KeepOwnership
}

// ShouldKeepPermissions returns whether source permission bits are restored on converted images.
func (d *Defaults) ShouldKeepPermissions() bool {
	return d.KeepPermissions != nil && *d.KeepPermissions
}

// ConnectTimeout parses the connection timeout, falling back to 5s on bad input.
func (c *Connection) ConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Load loads the configuration from ~/.diskconv/config.yaml (or cfgFile when
// non-empty) and returns defaults when no file exists.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		configDir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Try to read config file, but don't fail if it doesn't exist
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	expanded, err := homedir.Expand(cfg.Logging.File)
	if err == nil {
		cfg.Logging.File = expanded
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("connection.uri", "qemu:///system")
	v.SetDefault("connection.socket", "/var/run/libvirt/libvirt-sock")
	v.SetDefault("connection.timeout", "5s")

	v.SetDefault("converter.binary", "qemu-img")

	v.SetDefault("defaults.format", "qcow2")
	v.SetDefault("defaults.append_extension", false)
	v.SetDefault("defaults.keep_ownership", false)
	v.SetDefault("defaults.keep_permissions", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
}

// ConfigDir returns the diskconv configuration directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".diskconv"), nil
}
