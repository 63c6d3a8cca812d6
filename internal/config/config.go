// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/intbuddy/internal/llm"
)

// EnvPrefix prefixes every environment variable, e.g. INTBUDDY_WORKERS.
// Keys with an explicit name also fall back to the unprefixed variable,
// so GEMINI_API_KEY and DATABASE_URL work as-is.
const EnvPrefix = "INTBUDDY"

// Config holds runtime settings. Environment variables (and .env) are read
// first; a JSON or YAML config file, when given, overrides them field by field.
type Config struct {
	// Model
	Provider       string  `envconfig:"PROVIDER" default:"gemini" json:"provider,omitempty" yaml:"provider,omitempty" validate:"oneof=gemini openai"`
	APIKey         string  `envconfig:"GEMINI_API_KEY" json:"api_key,omitempty" yaml:"api_key,omitempty"`
	OpenAIAPIKey   string  `envconfig:"OPENAI_API_KEY" json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	BaseURL        string  `envconfig:"BASE_URL" json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	// Empty model names fall back to the provider defaults.
	Model          string  `envconfig:"MODEL" json:"model,omitempty" yaml:"model,omitempty"`
	LiteModel      string  `envconfig:"LITE_MODEL" json:"lite_model,omitempty" yaml:"lite_model,omitempty"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL" json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	Temperature    float32 `envconfig:"TEMPERATURE" default:"0.3" json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`

	// Scraping
	ListingURL  string        `envconfig:"LISTING_URL" default:"https://www.naukri.com/code360/interview-experiences" json:"listing_url,omitempty" yaml:"listing_url,omitempty" validate:"required,url"`
	Renderer    string        `envconfig:"RENDERER" default:"browser" json:"renderer,omitempty" yaml:"renderer,omitempty" validate:"oneof=browser http"`
	ChromePath  string        `envconfig:"CHROME_PATH" json:"chrome_path,omitempty" yaml:"chrome_path,omitempty"`
	Workers     int           `envconfig:"WORKERS" default:"5" json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=1,lte=32"`
	MaxPages    int           `envconfig:"MAX_PAGES" default:"10" json:"max_pages,omitempty" yaml:"max_pages,omitempty" validate:"gte=1"`
	PageTimeout time.Duration `envconfig:"PAGE_TIMEOUT" default:"60s" json:"-" yaml:"-" validate:"gt=0"`
	SettleDelay time.Duration `envconfig:"SETTLE_DELAY" default:"3s" json:"-" yaml:"-" validate:"gte=0"`

	// Retrieval
	TopK      int `envconfig:"TOP_K" default:"5" json:"top_k,omitempty" yaml:"top_k,omitempty" validate:"gte=1,lte=50"`
	ChunkSize int `envconfig:"CHUNK_SIZE" default:"1000" json:"chunk_size,omitempty" yaml:"chunk_size,omitempty" validate:"gte=200"`

	// Storage and serving
	DatabaseURL string `envconfig:"DATABASE_URL" json:"database_url,omitempty" yaml:"database_url,omitempty"`
	Port        string `envconfig:"PORT" default:"8080" json:"port,omitempty" yaml:"port,omitempty" validate:"required,numeric"`

	// Error reporting
	SentryDSN string `envconfig:"SENTRY_DSN" json:"sentry_dsn,omitempty" yaml:"sentry_dsn,omitempty"`

	// Logging
	LogEnv   string `envconfig:"ENV" default:"local" json:"log_env,omitempty" yaml:"log_env,omitempty" validate:"oneof=local dev prod"`
	LogLevel string `envconfig:"LOG_LEVEL" json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// Load reads .env (if present) and the environment, then applies the config
// file at path when path is non-empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if path != "" {
		file, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = file.MergeWithDefaults(cfg)
	}

	return &cfg, nil
}

// LoadConfig loads configuration from a JSON file, or YAML when the file
// extension is .yaml or .yml. Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks that the configuration has valid values. The API key is
// not required here since only commands that call the model need it.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("'%s' failed '%s'", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.ChromePath != "" {
		if _, err := os.Stat(c.ChromePath); os.IsNotExist(err) {
			return fmt.Errorf("config error: chrome binary not found: %s", c.ChromePath)
		}
	}

	return nil
}

// ProviderAPIKey returns the API key of the configured provider.
func (c *Config) ProviderAPIKey() string {
	if llm.Provider(c.Provider) == llm.ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.APIKey
}

// RequireAPIKey returns an error when the configured provider has no API key.
func (c *Config) RequireAPIKey() error {
	if c.ProviderAPIKey() != "" {
		return nil
	}
	if llm.Provider(c.Provider) == llm.ProviderOpenAI {
		return fmt.Errorf("config error: OPENAI_API_KEY is not set (export it or add it to .env)")
	}
	return fmt.Errorf("config error: GEMINI_API_KEY is not set (export it or add it to .env)")
}

// LLMConfig builds the model configuration. Model answers questions;
// LiteModel serves question rewriting.
func (c *Config) LLMConfig() *llm.Config {
	base := llm.DefaultGeminiConfig()
	if llm.Provider(c.Provider) == llm.ProviderOpenAI {
		base = llm.DefaultOpenAIConfig()
	}
	base.BaseURL = c.BaseURL
	if c.Temperature > 0 {
		base.Temperature = c.Temperature
	}
	if c.EmbeddingModel != "" {
		base.EmbeddingModel = c.EmbeddingModel
	}
	if c.Model != "" {
		base = base.WithModel(llm.TierStandard, c.Model)
	}
	if c.LiteModel != "" {
		base = base.WithModel(llm.TierLite, c.LiteModel)
	}
	return base
}

// ClampPages limits a requested page count to [1, MaxPages].
func (c *Config) ClampPages(pages int) int {
	return min(max(pages, 1), max(c.MaxPages, 1))
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	mergeString(&result.Provider, defaults.Provider)
	mergeString(&result.APIKey, defaults.APIKey)
	mergeString(&result.OpenAIAPIKey, defaults.OpenAIAPIKey)
	mergeString(&result.BaseURL, defaults.BaseURL)
	mergeString(&result.SentryDSN, defaults.SentryDSN)
	mergeString(&result.Model, defaults.Model)
	mergeString(&result.LiteModel, defaults.LiteModel)
	mergeString(&result.EmbeddingModel, defaults.EmbeddingModel)
	mergeString(&result.ListingURL, defaults.ListingURL)
	mergeString(&result.Renderer, defaults.Renderer)
	mergeString(&result.ChromePath, defaults.ChromePath)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)
	mergeString(&result.Port, defaults.Port)
	mergeString(&result.LogEnv, defaults.LogEnv)
	mergeString(&result.LogLevel, defaults.LogLevel)

	// Int fields: use default if zero
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.MaxPages == 0 {
		result.MaxPages = defaults.MaxPages
	}
	if result.TopK == 0 {
		result.TopK = defaults.TopK
	}
	if result.ChunkSize == 0 {
		result.ChunkSize = defaults.ChunkSize
	}
	if result.Temperature == 0 {
		result.Temperature = defaults.Temperature
	}

	// Durations are environment-only
	if result.PageTimeout == 0 {
		result.PageTimeout = defaults.PageTimeout
	}
	if result.SettleDelay == 0 {
		result.SettleDelay = defaults.SettleDelay
	}

	return result
}

func mergeString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
