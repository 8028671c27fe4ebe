package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("ouroboros: invalid configuration")

type Config struct {
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Autosave AutosaveConfig `yaml:"autosave" toml:"autosave"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Spatial  SpatialConfig  `yaml:"spatial" toml:"spatial"`
}

type StorageConfig struct {
	Path             string `yaml:"path" toml:"path"`
	InMemory         bool   `yaml:"inMemory" toml:"inMemory"`
	MinimumFreeSpace int    `yaml:"minimumFreeSpace" toml:"minimumFreeSpace"` // in GB
}

type AutosaveConfig struct {
	// Interval of zero disables autosave.
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
}

type SpatialConfig struct {
	MaxEntries int `yaml:"maxEntries" toml:"maxEntries"`
	MinEntries int `yaml:"minEntries" toml:"minEntries"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path: "./cadstore",
		},
		Autosave: AutosaveConfig{
			Interval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Spatial: SpatialConfig{
			MaxEntries: 50,
			MinEntries: 10,
		},
	}
}

// Load reads a YAML or TOML file, picked by extension, over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("config %s: unknown extension %q: %w", path, ext, ErrInvalidConfig)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is empty: %w", ErrInvalidConfig)
	}
	if c.Storage.MinimumFreeSpace < 0 {
		return fmt.Errorf("storage.minimumFreeSpace is negative: %w", ErrInvalidConfig)
	}
	if c.Autosave.Interval < 0 {
		return fmt.Errorf("autosave.interval is negative: %w", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q: %w", c.Logging.Format, ErrInvalidConfig)
	}
	if c.Spatial.MaxEntries < 4 {
		return fmt.Errorf("spatial.maxEntries %d below 4: %w", c.Spatial.MaxEntries, ErrInvalidConfig)
	}
	if c.Spatial.MinEntries < 1 || c.Spatial.MinEntries > c.Spatial.MaxEntries/2 {
		return fmt.Errorf("spatial.minEntries %d outside 1..%d: %w", c.Spatial.MinEntries, c.Spatial.MaxEntries/2, ErrInvalidConfig)
	}
	return nil
}
