// Package config holds the run configuration loaded from yaml, with the
// defaults applied before validation.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reposlice/reposlice/internal/lang"
)

// Config controls one slicing run. The zero value is not usable; start from
// Default and override from a file or flags.
type Config struct {
	// Language selects the grammar and extension set: "c" or "cpp".
	Language string `yaml:"language"`

	// MaxWorkers bounds each parallel analysis phase.
	MaxWorkers int `yaml:"max-workers"`

	// Oracle settings.
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	BaseURL        string  `yaml:"base-url"`
	APIKeyEnv      string  `yaml:"api-key-env"`
	MaxRetries     int     `yaml:"max-retries"`
	TimeoutSeconds int     `yaml:"timeout-seconds"`

	// CallDepth is the interprocedural hop budget of the slice driver.
	CallDepth int `yaml:"call-depth"`

	// Backward is the default slicing direction when the request omits it.
	Backward bool `yaml:"backward"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Language:       "cpp",
		MaxWorkers:     8,
		Temperature:    0,
		MaxRetries:     3,
		TimeoutSeconds: 60,
		CallDepth:      3,
		Backward:       true,
	}
}

// Load reads a yaml file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the run cannot start with.
func (c Config) Validate() error {
	if _, ok := lang.Get(c.Language); !ok {
		return fmt.Errorf("config: unsupported language %q (supported: %s)",
			c.Language, strings.Join(lang.Names(), ", "))
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("config: max-workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: max-retries must be >= 1, got %d", c.MaxRetries)
	}
	if c.CallDepth < 0 {
		return fmt.Errorf("config: call-depth must be >= 0, got %d", c.CallDepth)
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("config: timeout-seconds must be >= 1, got %d", c.TimeoutSeconds)
	}
	return nil
}

// APIKey resolves the oracle credential from the configured environment
// variable. An empty name or unset variable yields an empty key, which the
// client sends no Authorization header for.
func (c Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}
