package ratelimit

import (
	"strings"
)

// unlimitedPaths are never rate limited.
var unlimitedPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// MatchEndpoint returns the first configuration whose method and pattern
// match the request, an unlimited configuration for health and metrics, or
// nil when nothing matches.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if method == "GET" && unlimitedPaths[path] {
		return &EndpointConfig{Pattern: path}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method == method && matchPattern(config.Pattern, path) {
			return config
		}
	}

	return nil
}

// matchPattern compares path segments; "*" matches exactly one non-empty
// segment and a pattern ending in "/" matches any remaining segments.
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/") && pattern != "/" {
		prefix := strings.TrimSuffix(pattern, "/")
		pp := strings.Split(prefix, "/")
		ps := strings.Split(path, "/")
		return len(ps) > len(pp) && segmentsMatch(pp, ps[:len(pp)])
	}
	return segmentsMatch(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func segmentsMatch(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if seg == "*" {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
