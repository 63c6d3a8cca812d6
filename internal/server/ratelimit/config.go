package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Pattern string        // Path pattern; "*" matches one segment, a trailing "/" matches any suffix
	Method  string        // HTTP method (GET, POST, etc.)
	Limit   int           // Maximum requests per window
	Window  time.Duration // Time window
	Burst   int           // Burst capacity (defaults to Limit if 0)
}

// envSettings mirrors the INTBUDDY_RATE_LIMIT_* environment variables.
type envSettings struct {
	Enabled         bool          `envconfig:"ENABLED" default:"true"`
	DefaultLimit    int           `envconfig:"DEFAULT_LIMIT" default:"600"`
	DefaultWindow   time.Duration `envconfig:"DEFAULT_WINDOW" default:"1m"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"5m"`
	LoadLimit       int           `envconfig:"LOAD_LIMIT" default:"10"`
	AskLimit        int           `envconfig:"ASK_LIMIT" default:"120"`
	Whitelist       []string      `envconfig:"WHITELIST"`
	Blacklist       []string      `envconfig:"BLACKLIST"`
}

// LoadConfig loads rate limiting configuration from INTBUDDY_RATE_LIMIT_* variables.
func LoadConfig() (*Config, error) {
	var env envSettings
	if err := envconfig.Process("INTBUDDY_RATE_LIMIT", &env); err != nil {
		return nil, fmt.Errorf("failed to process rate limit config: %w", err)
	}

	if !env.Enabled {
		return &Config{Enabled: false}, nil
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    env.DefaultLimit,
		DefaultWindow:   env.DefaultWindow,
		CleanupInterval: env.CleanupInterval,
		Whitelist:       ipSet(env.Whitelist),
		Blacklist:       ipSet(env.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(env.LoadLimit, env.AskLimit),
	}, nil
}

// DefaultEndpointConfigs returns the endpoint-specific limits. Loading a
// session drives a headless browser against the source site and is the
// most expensive call; asking calls the model once or twice.
func DefaultEndpointConfigs(loadPerHour, askPerMinute int) []EndpointConfig {
	return []EndpointConfig{
		{Pattern: "/sessions/*/load", Method: "POST", Limit: loadPerHour, Window: time.Hour, Burst: 3},
		{Pattern: "/sessions/*/load/stream", Method: "POST", Limit: loadPerHour, Window: time.Hour, Burst: 3},
		{Pattern: "/sessions/*/ask", Method: "POST", Limit: askPerMinute, Window: time.Minute, Burst: 10},
		{Pattern: "/sessions", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
	}
}

func ipSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
