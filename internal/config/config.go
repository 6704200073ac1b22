// Package config loads and validates the run configuration from config
// files, environment variables and CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the validated run configuration. Immutable after Load.
type Config struct {
	Hosts          string        `mapstructure:"hosts"`           // comma-separated host[:port] list
	Inventory      string        `mapstructure:"inventory"`       // inventory file path
	User           string        `mapstructure:"user"`            // remote user
	PrivateKey     string        `mapstructure:"private-key"`     // private key file
	Password       string        `mapstructure:"password"`        // password auth candidate
	AskPass        bool          `mapstructure:"ask-pass"`        // prompt for password
	Concurrency    uint          `mapstructure:"concurrency"`     // max in-flight targets
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"` // per-attempt connect budget
	Timeout        time.Duration `mapstructure:"timeout"`         // io idle timeout per command
	Retries        uint          `mapstructure:"retries"`         // retry budget per target
	Output         string        `mapstructure:"output"`          // text, json, pretty-json
	Fields         string        `mapstructure:"fields"`          // output field subset
	Quiet          bool          `mapstructure:"quiet"`           // suppress non-error logs
	Verbose        bool          `mapstructure:"verbose"`         // log plan details
	DryRun         bool          `mapstructure:"dry-run"`         // print plan, do not connect
	LogFormat      string        `mapstructure:"log-format"`      // text or json
}

// Manager loads configuration with the precedence defaults < file < env <
// CLI flag overrides applied by the caller.
type Manager struct {
	v *viper.Viper
}

// NewManager creates a configuration manager.
func NewManager() *Manager {
	return &Manager{v: viper.New()}
}

func (m *Manager) setDefaults() {
	m.v.SetDefault("user", "root")
	m.v.SetDefault("concurrency", 10)
	m.v.SetDefault("connect-timeout", 10*time.Second)
	m.v.SetDefault("timeout", 30*time.Second)
	m.v.SetDefault("retries", 0)
	m.v.SetDefault("output", "text")
	m.v.SetDefault("log-format", "text")
}

// Load reads configuration from files and CRUSTY_* environment variables.
func (m *Manager) Load() (*Config, error) {
	m.setDefaults()

	m.v.SetConfigName("config")
	m.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		m.v.AddConfigPath(filepath.Join(home, ".config", "crusty"))
	}
	m.v.AddConfigPath("/etc/crusty/")

	m.v.SetEnvPrefix("CRUSTY")
	m.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	m.v.AutomaticEnv()

	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration once at startup. A passing config is
// never re-validated.
func Validate(cfg *Config) error {
	if cfg.User == "" {
		return fmt.Errorf("user must not be empty")
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.Concurrency > 1000 {
		return fmt.Errorf("concurrency too high: %d (maximum 1000)", cfg.Concurrency)
	}
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("connect-timeout must be positive, got %v", cfg.ConnectTimeout)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", cfg.Timeout)
	}
	switch cfg.Output {
	case "text", "json", "pretty-json":
	default:
		return fmt.Errorf("invalid output mode %q: must be text, json or pretty-json", cfg.Output)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", cfg.LogFormat)
	}
	return nil
}
