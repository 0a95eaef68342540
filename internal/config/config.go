// Package config provides configuration loading for taskmind.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	// Addr is the listen address for the HTTP API.
	Addr string `yaml:"addr"`
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `yaml:"database_url"`
	Model       ModelConfig `yaml:"model"`
}

// ModelConfig configures the language model used by the agent.
type ModelConfig struct {
	// Name is the model identifier (e.g. "gpt-4o-mini" or "qwen2.5:14b").
	Name string `yaml:"name"`
	// Endpoint is an OpenAI-compatible API base URL.
	Endpoint string `yaml:"endpoint"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for model responses.
	Timeout time.Duration `yaml:"timeout"`
	// APIKey is taken from the environment, never from the file.
	APIKey string `yaml:"-"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Addr:        ":8080",
		DatabaseURL: "postgres://localhost:5432/taskmind",
		Model: ModelConfig{
			Name:        "gpt-4o-mini",
			Endpoint:    "https://api.openai.com/v1",
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
	}
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist, then applies environment overrides (PORT, DATABASE_URL,
// OPENAI_API_KEY).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url cannot be empty")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name cannot be empty")
	}
	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	return nil
}
