// Package config loads examdrill settings from defaults, an optional YAML
// file, EXAMDRILL_* environment variables and command-line flags, in
// increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/abhisek/examdrill/internal/drill"
	"github.com/abhisek/examdrill/internal/remote"
)

// EnvPrefix prefixes every environment override, e.g. EXAMDRILL_REMOTE_BASE_URL.
const EnvPrefix = "EXAMDRILL"

type Config struct {
	// DB is the SQLite file of the local session cache. Empty means the
	// default data directory.
	DB    string `mapstructure:"db"`
	Owner string `mapstructure:"owner"`
	Bank  string `mapstructure:"bank"`

	// DrillBudgetSec is the time budget of a drill session.
	DrillBudgetSec int `mapstructure:"drill_budget_sec"`

	// KeepEnded is how many ended sessions the local cache retains.
	KeepEnded int `mapstructure:"keep_ended"`

	Remote  remote.Config      `mapstructure:"remote"`
	Weights drill.WeightConfig `mapstructure:"weights"`
	Log     LogConfig          `mapstructure:"log"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File enables JSON logging to a rotating file.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Owner:          "local",
		DrillBudgetSec: 15 * 60,
		KeepEnded:      20,
		Remote:         remote.DefaultConfig(),
		Weights:        drill.DefaultWeightConfig(),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"db":     "db",
	"owner":  "owner",
	"bank":   "bank",
	"remote": "remote.base_url",
}

// Load reads the configuration. configFile may be empty, in which case
// examdrill.yaml is looked up in the working directory and
// $HOME/.config/examdrill; a missing file is not an error. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("examdrill")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/examdrill")
	}

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every scalar key so that environment variables
// can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("db", d.DB)
	v.SetDefault("owner", d.Owner)
	v.SetDefault("bank", d.Bank)
	v.SetDefault("drill_budget_sec", d.DrillBudgetSec)
	v.SetDefault("keep_ended", d.KeepEnded)

	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.token", d.Remote.Token)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.retries", d.Remote.Retries)
	v.SetDefault("remote.retry_delay", d.Remote.RetryDelay)
	v.SetDefault("remote.rate_per_sec", d.Remote.RatePerSec)

	v.SetDefault("weights.recency_amplitude", d.Weights.RecencyAmplitude)
	v.SetDefault("weights.recency_scale_hours", d.Weights.RecencyScaleHours)
	v.SetDefault("weights.slow_amplitude", d.Weights.SlowAmplitude)
	v.SetDefault("weights.slow_threshold_sec", d.Weights.SlowThresholdSec)
	v.SetDefault("weights.correct_factor", d.Weights.CorrectFactor)
	v.SetDefault("weights.incorrect_factor", d.Weights.IncorrectFactor)
	v.SetDefault("weights.floor", d.Weights.Floor)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Validate reports settings no component can work with.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("config: owner must not be empty")
	}
	if c.DrillBudgetSec <= 0 {
		return fmt.Errorf("config: drill_budget_sec must be positive")
	}
	if c.KeepEnded < 0 {
		return fmt.Errorf("config: keep_ended must not be negative")
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("config: weights: %w", err)
	}
	return nil
}

// RemoteEnabled reports whether a record service is configured.
func (c *Config) RemoteEnabled() bool {
	return c.Remote.BaseURL != ""
}
