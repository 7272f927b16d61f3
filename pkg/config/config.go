// Package config provides configuration loading and management for sensorgeom.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/contacts"
	"sensorgeom/pkg/gain"
	"sensorgeom/pkg/projection"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores the gain builder may use
		NumCores int `yaml:"numCores"`

		// StrictGeometry fails on coincident sensor/source points instead
		// of writing non-finite entries
		StrictGeometry bool `yaml:"strictGeometry"`
	} `yaml:"processing"`

	// Contact localization parameters
	Contacts struct {
		// BinWidth is the histogram bin width along the electrode axis
		BinWidth float64 `yaml:"binWidth"`

		// MinPeriod and MaxPeriod bound the expected contact spacing
		MinPeriod float64 `yaml:"minPeriod"`
		MaxPeriod float64 `yaml:"maxPeriod"`

		// NumPeriods is the number of candidate spacings evaluated
		NumPeriods int `yaml:"numPeriods"`
	} `yaml:"contacts"`

	// Gain matrix parameters
	Gain struct {
		// Conductivity of the medium used by the dipole model
		Conductivity float64 `yaml:"conductivity"`
	} `yaml:"gain"`

	// Projection matrix parameters
	Projection struct {
		Normalize  bool    `yaml:"normalize"`
		Percentile float64 `yaml:"percentile"`
		Ceil       bool    `yaml:"ceil"`
		Ceiling    float64 `yaml:"ceiling"`
	} `yaml:"projection"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warning, error
		Level string `yaml:"level"`

		// Indent pretty prints JSON log entries
		Indent bool `yaml:"indent"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.StrictGeometry = false

	loc := contacts.DefaultLocalizer()
	cfg.Contacts.BinWidth = loc.BinWidth
	cfg.Contacts.MinPeriod = loc.MinPeriod
	cfg.Contacts.MaxPeriod = loc.MaxPeriod
	cfg.Contacts.NumPeriods = loc.NumPeriods

	cfg.Gain.Conductivity = gain.Sigma

	proj := projection.DefaultOptions()
	cfg.Projection.Normalize = proj.Normalize
	cfg.Projection.Percentile = proj.Percentile
	cfg.Projection.Ceil = proj.Ceil
	cfg.Projection.Ceiling = proj.Ceiling

	cfg.Logging.Level = "info"
	cfg.Logging.Indent = false

	return cfg
}

// Localizer returns the contact localizer described by the configuration
func (c *Config) Localizer() contacts.Localizer {
	return contacts.Localizer{
		BinWidth:   c.Contacts.BinWidth,
		MinPeriod:  c.Contacts.MinPeriod,
		MaxPeriod:  c.Contacts.MaxPeriod,
		NumPeriods: c.Contacts.NumPeriods,
	}
}

// GainBuilder returns the gain builder described by the configuration
func (c *Config) GainBuilder() gain.Builder {
	return gain.Builder{
		NumCores:     c.Processing.NumCores,
		Conductivity: c.Gain.Conductivity,
		Strict:       c.Processing.StrictGeometry,
	}
}

// ProjectionOptions returns the projection options described by the
// configuration
func (c *Config) ProjectionOptions() projection.Options {
	return projection.Options{
		Normalize:  c.Projection.Normalize,
		Percentile: c.Projection.Percentile,
		Ceil:       c.Projection.Ceil,
		Ceiling:    c.Projection.Ceiling,
		Strict:     c.Processing.StrictGeometry,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.New("error reading config file").
			WithTag("path", configPath).
			Wrap(err)
	}

	// Keys missing from the file keep their defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("error parsing config file").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", configPath).
			Wrap(err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.New("error creating config directory").
			WithTag("path", configPath).
			Wrap(err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.New("error marshaling config").Wrap(err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.New("error writing config file").
			WithTag("path", configPath).
			Wrap(err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
