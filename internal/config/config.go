package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-history/internal/version"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// Environment variables read by ApplyEnv.
const (
	EnvPolygonAPIKey = "POLYGON_API_KEY"
	EnvDataDir       = "DATA_DIR"
	EnvProvider      = "MARKET_PROVIDER"
	EnvLogLevel      = "LOG_LEVEL"
	EnvMaxBars       = "MAX_BARS"
)

// Config is the top-level configuration of the market tool.
type Config struct {
	// Version is the tool version (or semver constraint) the file was written for.
	Version  string   `yaml:"version"`
	Storage  Storage  `yaml:"storage"`
	Provider Provider `yaml:"provider"`
	Timezone Timezone `yaml:"timezone"`
	Logging  Logging  `yaml:"logging"`
}

// Storage holds where and how downloads are written.
type Storage struct {
	DataDir string `yaml:"data_dir" validate:"required"`
	Writer  string `yaml:"writer" validate:"required,oneof=csv duckdb parquet"`
}

// Provider selects the market data source.
type Provider struct {
	Name          string `yaml:"name" validate:"required,oneof=polygon binance"`
	PolygonAPIKey string `yaml:"polygon_api_key"`
	MaxBars       int    `yaml:"max_bars" validate:"min=1"`
}

// Timezone holds the source zone provider wall clocks are labeled with.
type Timezone struct {
	Source string `yaml:"source" validate:"required"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version: "",
		Storage: Storage{
			DataDir: "data",
			Writer:  "csv",
		},
		Provider: Provider{
			Name:          "polygon",
			PolygonAPIKey: "",
			MaxBars:       20000,
		},
		Timezone: Timezone{
			Source: "America/Sao_Paulo",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML configuration file at path on top of the defaults, applies
// environment variable overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config file %s", path)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides configuration fields with the well-known environment variables
// that are set.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvPolygonAPIKey); v != "" {
		cfg.Provider.PolygonAPIKey = v
	}

	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Provider.Name = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv(EnvMaxBars); v != "" {
		maxBars, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid %s", EnvMaxBars)
		}

		cfg.Provider.MaxBars = maxBars
	}

	return nil
}

// Validate checks field values and that the file was written for a compatible version.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	return version.CheckConfigCompatibility(version.GetVersion(), c.Version)
}
