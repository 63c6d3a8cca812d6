// Package session ties scraping, normalization, indexing and conversation
// together for interactive sessions, and caches built indexes per query.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonathan/intbuddy/internal/knowledge"
	"github.com/jonathan/intbuddy/internal/metrics"
	"github.com/jonathan/intbuddy/internal/types"
)

// Entry is everything built for one query. Result, Data and Index are
// produced together and never change afterwards.
type Entry struct {
	Query  types.Query
	Result *types.ResultSet
	Data   *types.InterviewData
	Index  *knowledge.Index
}

// Ready reports whether the entry has an index to chat over.
func (e *Entry) Ready() bool {
	return e != nil && e.Index != nil
}

// DefaultBuildTimeout bounds a shared build once it no longer follows any
// caller's context.
const DefaultBuildTimeout = 15 * time.Minute

// BuildFunc produces the entry for a cache miss.
type BuildFunc func(ctx context.Context) (*Entry, error)

// Cache memoizes entries by query key. Concurrent builds of the same key
// share one build.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]*Entry
	group        singleflight.Group
	buildTimeout time.Duration
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Entry), buildTimeout: DefaultBuildTimeout}
}

// GetOrBuild returns the cached entry for q or builds it. Only ready entries
// are stored; a build that found nothing is retried on the next call.
//
// A build runs detached from the caller that started it, bounded by the
// cache's build timeout, so one caller's cancellation never fails another
// caller waiting on the same key. Each caller stops waiting when its own ctx
// is done; the build itself carries on and fills the cache.
func (c *Cache) GetOrBuild(ctx context.Context, q types.Query, build BuildFunc) (*Entry, bool, error) {
	key := q.Key()

	if e, ok := c.get(key); ok {
		metrics.IndexCacheTotal.WithLabelValues("hit").Inc()
		return e, true, nil
	}
	metrics.IndexCacheTotal.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.get(key); ok {
			return e, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.buildTimeout)
		defer cancel()
		e, err := build(buildCtx)
		if err != nil {
			return nil, err
		}
		if e.Ready() {
			c.mu.Lock()
			c.entries[key] = e
			c.mu.Unlock()
		}
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Entry), res.Shared, nil
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
}

func (c *Cache) get(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}
