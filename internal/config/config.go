// Package config holds engine configuration: defaults, an optional YAML
// file, and a few environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// #region types

// Config is the top-level engine configuration.
type Config struct {
	Registry  RegistryConfig  `yaml:"registry"`
	Diffusion DiffusionConfig `yaml:"diffusion"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RegistryConfig controls operator execution.
type RegistryConfig struct {
	ExecutionTimeout time.Duration `yaml:"execution_timeout" validate:"gt=0"`
}

// DiffusionConfig bounds the parameters the simulator may be retuned to.
type DiffusionConfig struct {
	KappaMin  float64 `yaml:"kappa_min" validate:"gt=0"`
	KappaMax  float64 `yaml:"kappa_max" validate:"gtfield=KappaMin"`
	SigmaMin  float64 `yaml:"sigma_min" validate:"gte=0"`
	SigmaMax  float64 `yaml:"sigma_max" validate:"gtefield=SigmaMin"`
	Tolerance float64 `yaml:"tolerance" validate:"gt=0,lt=1"`
}

// EvolutionConfig drives the evolution loop.
type EvolutionConfig struct {
	Damping        float64 `yaml:"damping" validate:"gt=0,lte=1"`
	NoiseAmplitude float64 `yaml:"noise_amplitude" validate:"gte=0,lte=1"`
	RetuneEvery    int     `yaml:"retune_every" validate:"gte=1"`
	RetuneHorizon  int     `yaml:"retune_horizon" validate:"gte=1"`
	HistorySize    int     `yaml:"history_size" validate:"gte=1"`
	BaseKappa      float64 `yaml:"base_kappa" validate:"gt=0"`
	BaseSigma      float64 `yaml:"base_sigma" validate:"gte=0"`
	DebtCeiling    float64 `yaml:"debt_ceiling" validate:"gte=0,lte=1"`
	Dt             float64 `yaml:"dt" validate:"gt=0,lte=1"`
	StrategiesFile string  `yaml:"strategies_file"`
}

// StoreConfig selects the SQLite database.
type StoreConfig struct {
	DSN string `yaml:"dsn" validate:"required"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Registry: RegistryConfig{ExecutionTimeout: 30 * time.Second},
		Diffusion: DiffusionConfig{
			KappaMin:  0.05,
			KappaMax:  5,
			SigmaMin:  0.001,
			SigmaMax:  0.5,
			Tolerance: 0.01,
		},
		Evolution: EvolutionConfig{
			Damping:        0.1,
			NoiseAmplitude: 0.01,
			RetuneEvery:    10,
			RetuneHorizon:  20,
			HistorySize:    100,
			BaseKappa:      0.5,
			BaseSigma:      0.05,
			DebtCeiling:    0.3,
			Dt:             0.1,
		},
		Store:   StoreConfig{DSN: ":memory:"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// #endregion defaults

// #region load

var validate = validator.New()

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section's constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// #endregion load

// #region env

func applyEnv(cfg *Config) error {
	cfg.Store.DSN = envOr("EVOLUTION_DB", cfg.Store.DSN)
	cfg.Logging.Level = envOr("EVOLUTION_LOG_LEVEL", cfg.Logging.Level)
	if v := os.Getenv("EVOLUTION_OPERATOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EVOLUTION_OPERATOR_TIMEOUT: %w", err)
		}
		cfg.Registry.ExecutionTimeout = d
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion env
