// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the engine configuration, loadable from a YAML file:
//
//	storage_directory: /var/lib/lsmkv
//	memtable_capacity: 50
//	sparsity: 10
//	bloom_error_rate: 0.01
type Config struct {
	StorageDirectory string  `yaml:"storage_directory" validate:"required"`
	MemtableCapacity int     `yaml:"memtable_capacity" validate:"gt=0"`
	Sparsity         int     `yaml:"sparsity" validate:"gte=1"`
	BloomErrorRate   float64 `yaml:"bloom_error_rate" validate:"gt=0,lt=1"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		StorageDirectory: "lsmkv-data",
		MemtableCapacity: 50,
		Sparsity:         10,
		BloomErrorRate:   0.01,
	}
}

// Load reads a YAML file and overlays it onto the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct-tag constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
