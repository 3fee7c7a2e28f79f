// Package config loads process-level settings: where to listen, where data
// lives, and which optional writers run. Trail behavior lives in the tuning
// file, not here.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "LIGHTCYCLE"

type Prefs struct {
	Backend string `mapstructure:"backend"`
}

type Journal struct {
	Enabled bool `mapstructure:"enabled"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Addr          string  `mapstructure:"addr"`
	DataDir       string  `mapstructure:"dataDir"`
	LogLevel      string  `mapstructure:"logLevel"`
	LogFormat     string  `mapstructure:"logFormat"`
	TuningPath    string  `mapstructure:"tuningPath"`
	Seed          int64   `mapstructure:"seed"`
	OperatorToken string  `mapstructure:"operatorToken"`
	Prefs         Prefs   `mapstructure:"prefs"`
	Journal       Journal `mapstructure:"journal"`
	Metrics       Metrics `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("dataDir", "./data")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "console")
	v.SetDefault("tuningPath", "./configs/tuning.yaml")
	v.SetDefault("seed", 1337)
	v.SetDefault("operatorToken", "")
	v.SetDefault("prefs.backend", "sqlite")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("metrics.enabled", false)
}

// Load reads path (any format viper understands) over the defaults. An empty
// path uses defaults and environment only. LIGHTCYCLE_* variables override
// file values, e.g. LIGHTCYCLE_PREFS_BACKEND=yaml.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch strings.ToLower(c.Prefs.Backend) {
	case "sqlite", "yaml", "none", "":
	default:
		errs = append(errs, fmt.Errorf("prefs.backend %q is not one of sqlite, yaml, none", c.Prefs.Backend))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logFormat %q is not one of console, json", c.LogFormat))
	}
	persists := c.Journal.Enabled || !(c.Prefs.Backend == "none" || c.Prefs.Backend == "")
	if persists && strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("dataDir is required when prefs or journal persist"))
	}
	return errors.Join(errs...)
}
