package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/intbuddy/internal/llm"
)

func defaults(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaults(t)

	assert.Equal(t, "gemini", cfg.Provider)
	assert.Empty(t, cfg.Model)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-6)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 10, cfg.MaxPages)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 60*time.Second, cfg.PageTimeout)
	assert.Equal(t, "browser", cfg.Renderer)
	assert.Equal(t, "8080", cfg.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("INTBUDDY_WORKERS", "3")
	t.Setenv("INTBUDDY_PAGE_TIMEOUT", "15s")
	t.Setenv("GEMINI_API_KEY", "unprefixed-key")
	t.Setenv("INTBUDDY_RENDERER", "http")

	cfg := defaults(t)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 15*time.Second, cfg.PageTimeout)
	assert.Equal(t, "unprefixed-key", cfg.APIKey)
	assert.Equal(t, "http", cfg.Renderer)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("INTBUDDY_WORKERS", "many")

	_, err := Load("")
	assert.ErrorContains(t, err, "failed to process environment")
}

func TestLoad_FileOverridesEnvironment(t *testing.T) {
	t.Setenv("INTBUDDY_TOP_K", "7")

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{"workers": 2, "model": "gemini-custom"}`), 0644))

	cfg, err := Load(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "gemini-custom", cfg.Model)
	assert.Equal(t, 7, cfg.TopK)
	assert.Equal(t, 1000, cfg.ChunkSize)
}

func TestLoad_YAMLFile(t *testing.T) {
	content := "provider: openai\nbase_url: https://llm.internal/v1\ntop_k: 3\n"

	tmpFile := filepath.Join(t.TempDir(), "intbuddy.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	cfg, err := Load(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "https://llm.internal/v1", cfg.BaseURL)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 5, cfg.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("workers: [1, 2"), 0644))

	_, err := LoadConfig(tmpFile)
	assert.ErrorContains(t, err, "failed to parse config YAML")
}

func TestLLMConfig(t *testing.T) {
	cfg := defaults(t)
	gemini := cfg.LLMConfig()
	assert.Equal(t, llm.ProviderGemini, gemini.Provider)
	assert.Equal(t, "gemini-2.0-flash", gemini.GetModel(llm.TierStandard))
	assert.Equal(t, llm.DefaultEmbeddingModel, gemini.EmbeddingModel)

	cfg.Provider = "openai"
	cfg.Model = "gpt-custom"
	openai := cfg.LLMConfig()
	assert.Equal(t, llm.ProviderOpenAI, openai.Provider)
	assert.Equal(t, "gpt-custom", openai.GetModel(llm.TierStandard))
	assert.Equal(t, "gpt-4o-mini", openai.GetModel(llm.TierLite))
	assert.Equal(t, "text-embedding-3-small", openai.EmbeddingModel)
}

func TestRequireAPIKey_PerProvider(t *testing.T) {
	cfg := &Config{Provider: "openai", APIKey: "gemini-only"}
	assert.ErrorContains(t, cfg.RequireAPIKey(), "OPENAI_API_KEY")

	cfg.OpenAIAPIKey = "sk-test"
	assert.NoError(t, cfg.RequireAPIKey())
	assert.Equal(t, "sk-test", cfg.ProviderAPIKey())
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{
		"api_key": "abc",
		"listing_url": "https://example.com/list",
		"workers": 4,
		"database_url": "postgres://localhost/intbuddy"
	}`

	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "abc", cfg.APIKey)
	assert.Equal(t, "https://example.com/list", cfg.ListingURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "postgres://localhost/intbuddy", cfg.DatabaseURL)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(tmpFile, []byte(`{ invalid json }`), 0644))

	cfg, err := LoadConfig(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"tiny chunks", func(c *Config) { c.ChunkSize = 50 }, "ChunkSize"},
		{"bad renderer", func(c *Config) { c.Renderer = "selenium" }, "Renderer"},
		{"bad listing url", func(c *Config) { c.ListingURL = "not a url" }, "ListingURL"},
		{"bad env", func(c *Config) { c.LogEnv = "staging" }, "LogEnv"},
		{"bad provider", func(c *Config) { c.Provider = "anthropic" }, "Provider"},
		{"missing chrome", func(c *Config) { c.ChromePath = "/nonexistent/chrome" }, "chrome binary not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := &Config{}
	assert.ErrorContains(t, cfg.RequireAPIKey(), "GEMINI_API_KEY")
}

func TestClampPages(t *testing.T) {
	cfg := &Config{MaxPages: 10}
	assert.Equal(t, 1, cfg.ClampPages(0))
	assert.Equal(t, 4, cfg.ClampPages(4))
	assert.Equal(t, 10, cfg.ClampPages(25))
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := Config{Model: "mine", Workers: 2}
	merged := cfg.MergeWithDefaults(Config{Model: "theirs", LiteModel: "lite", Workers: 5, TopK: 5})

	assert.Equal(t, "mine", merged.Model)
	assert.Equal(t, "lite", merged.LiteModel)
	assert.Equal(t, 2, merged.Workers)
	assert.Equal(t, 5, merged.TopK)
}
