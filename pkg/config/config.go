package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tandemhq/aigate/pkg/models"
)

// Config holds all aigate configuration.
type Config struct {
	Listen    string                 `yaml:"listen"`
	DBPath    string                 `yaml:"db_path"`
	Providers ProvidersConfig        `yaml:"providers"`
	RateLimit models.RateLimitPolicy `yaml:"rate_limit"`
	Retention RetentionConfig        `yaml:"retention"`
	Pricing   []models.ModelPricing  `yaml:"pricing"`
	Logging   LoggingConfig          `yaml:"logging"`
}

// ProvidersConfig defines upstream provider endpoints and the request timeout.
// Base URLs are overridable so tests and self-hosted gateways can point
// elsewhere; credentials live in the keystore, never here.
type ProvidersConfig struct {
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url"`
	Timeout          time.Duration `yaml:"timeout"`
}

// UnmarshalYAML accepts timeout as a duration string ("90s", "2m") or a bare
// number of seconds. yaml.v3 would otherwise read a plain integer as
// nanoseconds. Fields absent from the node keep their current values.
func (p *ProvidersConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		OpenAIBaseURL    string `yaml:"openai_base_url"`
		AnthropicBaseURL string `yaml:"anthropic_base_url"`
		Timeout          string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.OpenAIBaseURL != "" {
		p.OpenAIBaseURL = raw.OpenAIBaseURL
	}
	if raw.AnthropicBaseURL != "" {
		p.AnthropicBaseURL = raw.AnthropicBaseURL
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			secs, serr := strconv.Atoi(raw.Timeout)
			if serr != nil {
				return fmt.Errorf("parse providers.timeout %q: %w", raw.Timeout, err)
			}
			d = time.Duration(secs) * time.Second
		}
		p.Timeout = d
	}
	return nil
}

// RetentionConfig bounds the usage ledger.
type RetentionConfig struct {
	MaxRecords int `yaml:"max_records"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8090",
		DBPath: "aigate.db",
		Providers: ProvidersConfig{
			OpenAIBaseURL:    "https://api.openai.com",
			AnthropicBaseURL: "https://api.anthropic.com",
			Timeout:          60 * time.Second,
		},
		RateLimit: models.RateLimitPolicy{
			HourlyRequests: 50,
			DailyRequests:  500,
			HourlyTokens:   100_000,
			DailyTokens:    1_000_000,
		},
		Retention: RetentionConfig{
			MaxRecords: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
