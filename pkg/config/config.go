// Package config loads the run configuration: logging options and the
// default SSH credential block applied to hosts that carry none.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andrej220/configzz/internal/errs"
	"github.com/andrej220/configzz/internal/lg"
	"github.com/andrej220/configzz/pkg/config/configstore"
	"github.com/andrej220/configzz/pkg/config/filestore"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultLogLevel  = lg.LevelInfo
	DefaultLogFormat = lg.FormatConsole
)

// Credentials is an SSH credential block, used both as the run default and
// per host in the inventory.
type Credentials struct {
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password,omitempty"`
	Key            string        `yaml:"key,omitempty"`
	Passphrase     string        `yaml:"passphrase,omitempty"`
	Port           int           `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	KnownHosts     string        `yaml:"known_hosts,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty" validate:"min=0"`
	ConnectRetries int           `yaml:"connect_retries,omitempty" validate:"min=0"`
}

// HasSecret reports whether the block can authenticate at all.
func (c *Credentials) HasSecret() bool {
	return c != nil && (c.Password != "" || c.Key != "")
}

type RunConfig struct {
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format" validate:"omitempty,oneof=console json"`
	SSH       *Credentials `yaml:"ssh,omitempty"`
}

func Default() *RunConfig {
	return &RunConfig{LogLevel: DefaultLogLevel, LogFormat: DefaultLogFormat}
}

// LogConfig is the logger configuration for this run.
func (c *RunConfig) LogConfig(service string) *lg.Config {
	return &lg.Config{ServiceName: service, Level: c.LogLevel, Format: c.LogFormat}
}

var validate = validator.New()

// Load reads the run configuration at path. An empty path or an empty file
// yields the defaults. An unknown log level is reported on logger and
// replaced by the default.
func Load(path string, logger lg.Logger) (*RunConfig, error) {
	if path == "" {
		return Default(), nil
	}
	return load(filestore.New(path), logger)
}

func load(store configstore.ConfigStore, logger lg.Logger) (*RunConfig, error) {
	cfg := Default()
	if err := store.Load(cfg); err != nil {
		if errors.Is(err, filestore.ErrEmpty) {
			return Default(), nil
		}
		return nil, err
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	} else if _, ok := lg.ParseLevel(cfg.LogLevel); !ok {
		logger.Warn("unknown log_level, using default",
			lg.String("log_level", cfg.LogLevel),
			lg.String("default", DefaultLogLevel))
		cfg.LogLevel = DefaultLogLevel
	}
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: run config: %v", errs.ErrMalformedInput, err)
	}
	return cfg, nil
}
