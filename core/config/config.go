// Package config loads kernel configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/treekernel/core/kernel"
)

// ErrInvalidConfig reports a configuration that cannot produce a valid
// kernel.
var ErrInvalidConfig = errors.New("invalid config")

// Bucket policy names accepted in configuration files.
const (
	PolicyDefault = "default"
	PolicyStrict  = "strict"
)

// Config is the on-disk kernel configuration.
type Config struct {
	Lambda        []float64      `yaml:"lambda"`
	Sigma         []float64      `yaml:"sigma"`
	LambdaBuckets map[string]int `yaml:"lambda_buckets"`
	SigmaBuckets  map[string]int `yaml:"sigma_buckets"`
	BucketPolicy  string         `yaml:"bucket_policy"`
	Normalize     bool           `yaml:"normalize"`
	Workers       int            `yaml:"workers"`
}

// DefaultConfig returns a single-bucket, normalized configuration.
func DefaultConfig() *Config {
	return &Config{
		Lambda:       []float64{0.5},
		Sigma:        []float64{1.0},
		BucketPolicy: PolicyDefault,
		Normalize:    true,
	}
}

// Load reads a YAML config file. Absent keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration without building a kernel.
func (c *Config) Validate() error {
	if _, err := c.policy(); err != nil {
		return err
	}
	h, err := c.Hyperparams()
	if err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers = %d, must be >= 0", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// Hyperparams converts the configuration into the kernel's table.
func (c *Config) Hyperparams() (kernel.Hyperparams, error) {
	policy, err := c.policy()
	if err != nil {
		return kernel.Hyperparams{}, err
	}
	return kernel.Hyperparams{
		Lambda:        c.Lambda,
		Sigma:         c.Sigma,
		LambdaBuckets: c.LambdaBuckets,
		SigmaBuckets:  c.SigmaBuckets,
		Policy:        policy,
	}, nil
}

// Options builds kernel options from the configuration.
func (c *Config) Options() (kernel.Options, error) {
	h, err := c.Hyperparams()
	if err != nil {
		return kernel.Options{}, err
	}
	return kernel.Options{
		Params:    h,
		Normalize: c.Normalize,
		Workers:   c.Workers,
	}, nil
}

func (c *Config) policy() (kernel.BucketPolicy, error) {
	switch c.BucketPolicy {
	case "", PolicyDefault:
		return kernel.BucketPolicyDefault, nil
	case PolicyStrict:
		return kernel.BucketPolicyStrict, nil
	default:
		return 0, fmt.Errorf("%w: unknown bucket_policy %q", ErrInvalidConfig, c.BucketPolicy)
	}
}
