package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lorrc/service-desk-realtime/internal/client/connection"
)

const appName = "deskctl"

// cliConfig is the resolved configuration of one invocation.
type cliConfig struct {
	Server           string        `mapstructure:"server"`
	StateDir         string        `mapstructure:"state_dir"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	LogLevel         string        `mapstructure:"log_level"`
}

// defaultConfigPath is $XDG_CONFIG_HOME/deskctl/config.yaml.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(dir, appName, "config.yaml")
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(dir, appName, "state")
}

// newViper layers flags over DESKCTL_* variables over the config file over
// defaults.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("state_dir", defaultStateDir())
	v.SetDefault("heartbeat_timeout", 60*time.Second)
	v.SetDefault("initial_backoff", 3*time.Second)
	v.SetDefault("max_backoff", 15*time.Second)
	v.SetDefault("max_attempts", 0)
	v.SetDefault("log_level", "warn")

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"server":    "server",
		"state_dir": "state-dir",
		"log_level": "log-level",
	}
	for key, flag := range bindings {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
	}
	return v, nil
}

// loadConfig reads path (missing is fine) and resolves every key.
func loadConfig(v *viper.Viper, path string) (cliConfig, error) {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cliConfig{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c cliConfig) validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server must be an http(s) URL, got %q", c.Server)
	}
	if c.MaxAttempts < 0 {
		return errors.New("max_attempts must not be negative")
	}
	if c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff {
		return errors.New("initial_backoff must not exceed max_backoff")
	}
	return nil
}

// profile names the keyring slot of the configured server.
func (c cliConfig) profile() string {
	u, err := url.Parse(c.Server)
	if err != nil {
		return ""
	}
	return u.Host
}

func (c cliConfig) connection() connection.Config {
	return connection.Config{
		HeartbeatTimeout: c.HeartbeatTimeout,
		InitialBackoff:   c.InitialBackoff,
		MaxBackoff:       c.MaxBackoff,
		MaxAttempts:      c.MaxAttempts,
	}
}
