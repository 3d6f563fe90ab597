// Package config loads goobtool settings from an optional config file,
// GOOB_* environment variables, and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GOOB"

// Config represents application configuration.
type Config struct {
	DBPath          string        `mapstructure:"db_path"`          // path to the SQLite database file
	ConfigDir       string        `mapstructure:"config_dir"`       // directory holding tables.yaml and creation statements
	Driver          string        `mapstructure:"driver"`           // "sqlite" or "postgres"
	DSN             string        `mapstructure:"dsn"`              // postgres connection string
	LogLevel        string        `mapstructure:"log_level"`        // debug, info, warn or error
	SeqURL          string        `mapstructure:"seq_url"`          // optional Seq server for log shipping
	Port            int           `mapstructure:"port"`             // public HTTP port
	AdminPort       int           `mapstructure:"admin_port"`       // admin HTTP port, loopback only
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // graceful shutdown timeout
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath:          store.GetDBPath(store.GetStorePath()),
		ConfigDir:       "config",
		Driver:          "sqlite",
		LogLevel:        "info",
		Port:            8080,
		AdminPort:       8383,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Loader collects configuration sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader seeded with Defaults and GOOB_* environment variables.
func NewLoader() *Loader {
	v := viper.New()
	d := Defaults()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("config_dir", d.ConfigDir)
	v.SetDefault("driver", d.Driver)
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("seq_url", d.SeqURL)
	v.SetDefault("port", d.Port)
	v.SetDefault("admin_port", d.AdminPort)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlags binds command-line flags. Flag names use dashes; "db-path" maps
// to the db_path key. Only flags the user set override other sources.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		err = l.v.BindPFlag(key, f)
	})
	return err
}

// ReadFile merges the config file at path. The format follows the extension.
func (l *Loader) ReadFile(path string) error {
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return fmt.Errorf("error reading %q: %w", path, err)
	}
	return nil
}

// Load decodes and validates the merged configuration.
func (l *Loader) Load() (*Config, error) {
	var cfg Config
	err := l.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isKnownKey(key string) bool {
	switch key {
	case "db_path", "config_dir", "driver", "dsn", "log_level", "seq_url",
		"port", "admin_port", "shutdown_timeout":
		return true
	}
	return false
}

// Validate checks the configuration for missing or conflicting values.
func (c *Config) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("configure db_path")
		}
	case "postgres":
		if c.DSN == "" {
			return errors.New("configure dsn for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown driver %q (want sqlite or postgres)", c.Driver)
	}
	if c.ConfigDir == "" {
		return errors.New("configure config_dir")
	}
	if c.Port <= 0 || c.AdminPort <= 0 {
		return errors.New("configure port and admin_port")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("shutdown_timeout must not be negative")
	}
	return nil
}
