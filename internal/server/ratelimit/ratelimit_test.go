package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    5,
		DefaultWindow:   time.Minute,
		Whitelist:       map[string]bool{"10.0.0.1": true},
		Blacklist:       map[string]bool{"10.0.0.2": true},
		EndpointConfigs: DefaultEndpointConfigs(2, 3),
	}
}

func TestBucket_Take(t *testing.T) {
	now := time.Now()
	b := newBucket(3, 0.001, now)
	assert.True(t, b.take(now))
	assert.True(t, b.take(now))
	assert.True(t, b.take(now))
	assert.False(t, b.take(now))
}

func TestBucket_Refill(t *testing.T) {
	now := time.Now()
	b := newBucket(1, 10, now)
	require.True(t, b.take(now))
	require.False(t, b.take(now.Add(50*time.Millisecond)))

	assert.True(t, b.take(now.Add(150*time.Millisecond)))
}

func TestBucket_Full(t *testing.T) {
	now := time.Now()
	b := newBucket(4, 2, now)
	assert.Equal(t, now, b.full(now))

	require.True(t, b.take(now))
	assert.Equal(t, now.Add(500*time.Millisecond), b.full(now))
}

func TestLimiter_DefaultLimit(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		ok, info := l.Allow("client", "/sessions/abc/export.csv", "GET")
		require.True(t, ok, "request %d", i)
		assert.Equal(t, 5, info.Limit)
	}
	ok, info := l.Allow("client", "/sessions/abc/export.csv", "GET")
	assert.False(t, ok)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiter_LoadSharedAcrossSessions(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	ok, _ := l.Allow("client", "/sessions/s1/load", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("client", "/sessions/s2/load", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("client", "/sessions/s3/load", "POST")
	assert.True(t, ok, "burst of 3 allows a third load")
	ok, info := l.Allow("client", "/sessions/s4/load", "POST")
	assert.False(t, ok)
	assert.Equal(t, 2, info.Limit)

	ok, _ = l.Allow("other", "/sessions/s1/load", "POST")
	assert.True(t, ok, "clients have separate buckets")
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 20; i++ {
		ok, _ := l.Allow("10.0.0.1", "/sessions/x/load", "POST")
		require.True(t, ok)
	}
	ok, _ := l.Allow("10.0.0.2", "/health", "GET")
	assert.False(t, ok)
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("client", "/sessions/x/load", "POST")
		require.True(t, ok)
	}
}

func TestLimiter_UnlimitedPaths(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 50; i++ {
		ok, _ := l.Allow("client", "/health", "GET")
		require.True(t, ok)
		ok, _ = l.Allow("client", "/metrics", "GET")
		require.True(t, ok)
	}
	assert.Zero(t, l.Buckets())
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("client", "/sessions/x/ask", "POST"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 10, DefaultWindow: time.Minute})
	defer l.Stop()

	l.Allow("client", "/anything", "GET")
	require.Equal(t, 1, l.Buckets())

	l.sweep(time.Now().Add(30 * time.Minute))
	require.Equal(t, 1, l.Buckets(), "recently used bucket was swept")

	l.sweep(time.Now().Add(2 * time.Hour))
	assert.Zero(t, l.Buckets())
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(&Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Minute, CleanupInterval: time.Millisecond})
	l.Stop()
	assert.NotPanics(t, l.Stop)
}

func TestNewLimiter_NilConfig(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Stop()

	ok, info := l.Allow("client", "/sessions", "GET")
	assert.True(t, ok)
	assert.Equal(t, 600, info.Limit)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs(10, 120)

	tests := []struct {
		path    string
		method  string
		pattern string
	}{
		{"/sessions/abc/load", "POST", "/sessions/*/load"},
		{"/sessions/abc/load/stream", "POST", "/sessions/*/load/stream"},
		{"/sessions/abc/ask", "POST", "/sessions/*/ask"},
		{"/sessions", "POST", "/sessions"},
		{"/health", "GET", "/health"},
		{"/sessions/abc/load", "GET", ""},
		{"/sessions//load", "POST", ""},
		{"/sessions/abc/export.csv", "GET", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.pattern == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.pattern, got.Pattern)
		})
	}
}

func TestMatchPattern_PrefixSuffix(t *testing.T) {
	assert.True(t, matchPattern("/sessions/", "/sessions/a/b"))
	assert.False(t, matchPattern("/sessions/", "/sessions"))
	assert.True(t, matchPattern("/sessions/*/ask", "/sessions/1/ask"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("INTBUDDY_RATE_LIMIT_LOAD_LIMIT", "4")
	t.Setenv("INTBUDDY_RATE_LIMIT_WHITELIST", "127.0.0.1, 10.1.1.1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 600, cfg.DefaultLimit)
	assert.True(t, cfg.Whitelist["127.0.0.1"])
	assert.True(t, cfg.Whitelist["10.1.1.1"])
	assert.Equal(t, 4, MatchEndpoint("/sessions/x/load", "POST", cfg.EndpointConfigs).Limit)

	t.Setenv("INTBUDDY_RATE_LIMIT_ENABLED", "false")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
}
