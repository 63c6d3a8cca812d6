// Package ratelimit throttles API clients with per-endpoint token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// idleTTL is how long an unused bucket is kept before the sweeper drops it.
const idleTTL = time.Hour

// bucket refills continuously at rate tokens per second up to capacity.
// Buckets are guarded by the owning Limiter's mutex.
type bucket struct {
	capacity float64
	rate     float64
	tokens   float64
	refilled time.Time
	used     time.Time
}

func newBucket(capacity int, rate float64, now time.Time) *bucket {
	return &bucket{
		capacity: float64(capacity),
		rate:     rate,
		tokens:   float64(capacity),
		refilled: now,
		used:     now,
	}
}

func (b *bucket) refill(now time.Time) {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.refilled).Seconds()*b.rate)
	b.refilled = now
}

// take consumes one token if available.
func (b *bucket) take(now time.Time) bool {
	b.refill(now)
	b.used = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// full returns when the bucket will be back at capacity.
func (b *bucket) full(now time.Time) time.Time {
	if b.tokens >= b.capacity || b.rate <= 0 {
		return now
	}
	return now.Add(time.Duration((b.capacity - b.tokens) / b.rate * float64(time.Second)))
}

// Info describes a client's budget after a request, for response headers.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter keeps one bucket per client, endpoint pattern and method.
type Limiter struct {
	config *Config

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter. A nil config allows 600 requests a minute per
// client on every endpoint. Idle buckets are swept every CleanupInterval
// until Stop is called.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    600,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.sweepEvery(config.CleanupInterval)
	}
	return l
}

// Allow records a request from clientID and reports whether it fits the
// client's budget for the endpoint.
func (l *Limiter) Allow(clientID, endpoint, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	ec := l.limitFor(endpoint, method)
	if ec.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	// Keyed by pattern, so every session under /sessions/*/load draws from
	// one budget per client.
	key := clientID + ":" + ec.Pattern + ":" + method
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		burst := ec.Burst
		if burst <= 0 {
			burst = ec.Limit
		}
		b = newBucket(burst, float64(ec.Limit)/ec.Window.Seconds(), now)
		l.buckets[key] = b
	}
	allowed := b.take(now)
	info := Info{
		Allowed:   allowed,
		Limit:     ec.Limit,
		Remaining: int(b.tokens),
		ResetTime: b.full(now),
	}
	l.mu.Unlock()

	if !allowed {
		info.RetryAfter = max(info.ResetTime.Sub(now), 0)
	}
	return allowed, info
}

// limitFor returns the endpoint's configuration, or the default budget.
func (l *Limiter) limitFor(endpoint, method string) EndpointConfig {
	if match := MatchEndpoint(endpoint, method, l.config.EndpointConfigs); match != nil {
		ec := *match
		if ec.Pattern == "" {
			ec.Pattern = endpoint
		}
		return ec
	}
	return EndpointConfig{
		Pattern: "*default*",
		Limit:   l.config.DefaultLimit,
		Window:  l.config.DefaultWindow,
	}
}

func (l *Limiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets idle for longer than idleTTL.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.used.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Buckets returns the number of live buckets.
func (l *Limiter) Buckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
