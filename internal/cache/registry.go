// Package cache provides the bounded in-memory store of transcoded files.
package cache

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/ajaxzhan/gstfs/internal/logging"
	"github.com/ajaxzhan/gstfs/pkg/types"
)

// Resolver decides whether a virtual path is served from the cache and, if
// so, which source file it is transcoded from.
type Resolver interface {
	// Cacheable returns the source path and true when the virtual path is
	// eligible for transcoding.
	Cacheable(virtualPath string) (sourcePath string, ok bool)
}

// Registry maps virtual paths to entries and keeps them in LRU order.
//
// The underlying LRU is created unbounded so it never evicts on its own;
// the bound is enforced by evictExcess, which must skip busy entries. The
// registry lock is only held for bookkeeping and the eviction scan, never
// across a transcode or a content read.
type Registry struct {
	resolver      Resolver
	maxEntries    int
	maxEntryBytes int64

	mu  sync.Mutex
	lru *simplelru.LRU[string, *Entry]

	hits         atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	requeues     atomic.Uint64
	overCapacity atomic.Uint64
}

// NewRegistry creates a registry bounded to maxEntries entries. A
// non-positive bound falls back to types.DefaultMaxCacheEntries.
func NewRegistry(resolver Resolver, maxEntries int, maxEntryBytes int64) *Registry {
	if maxEntries <= 0 {
		maxEntries = types.DefaultMaxCacheEntries
	}
	// Only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[string, *Entry](math.MaxInt, nil)
	return &Registry{
		resolver:      resolver,
		maxEntries:    maxEntries,
		maxEntryBytes: maxEntryBytes,
		lru:           lru,
	}
}

// LookupOrCreate returns the entry for a virtual path, creating it on
// first use and moving it to the most recently used position. It returns
// types.ErrNotCacheable, without taking any lock, for paths that are not
// served from the cache.
func (r *Registry) LookupOrCreate(virtualPath string) (*Entry, error) {
	sourcePath, ok := r.resolver.Cacheable(virtualPath)
	if !ok {
		return nil, types.ErrNotCacheable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Get moves an existing entry to the most recently used position.
	e, found := r.lru.Get(virtualPath)
	if found {
		r.hits.Add(1)
	} else {
		r.misses.Add(1)
		e = newEntry(virtualPath, sourcePath, r.maxEntryBytes)
		r.lru.Add(virtualPath, e)
		logging.Debug("cache entry created",
			logging.String("path", virtualPath),
			logging.String("source", sourcePath),
		)
	}

	r.evictExcess(e)
	return e, nil
}

// evictExcess removes least recently used entries until the registry is
// back within bounds. Entries whose lock is held elsewhere are busy: they
// are moved to the back instead of removed. Each call inspects at most as
// many candidates as there were entries when it started, so a registry
// full of busy entries stays over capacity until a later call. keep is the
// entry being returned to the caller and is never evicted.
//
// Called with r.mu held.
func (r *Registry) evictExcess(keep *Entry) {
	budget := r.lru.Len()
	for r.lru.Len() > r.maxEntries && budget > 0 {
		budget--

		name, e, _ := r.lru.GetOldest()

		if e == keep || !e.TryLock() {
			r.lru.Get(name) // requeue as most recently used
			if e != keep {
				r.requeues.Add(1)
				logging.Debug("cache entry busy, requeued", logging.String("path", name))
			}
			continue
		}

		r.lru.Remove(name)
		e.release()
		e.Unlock()

		r.evictions.Add(1)
		logging.Debug("cache entry evicted", logging.String("path", name))
	}

	if r.lru.Len() > r.maxEntries {
		r.overCapacity.Add(1)
		logging.Debug("cache over capacity, remaining entries busy",
			logging.Int("entries", r.lru.Len()),
			logging.Int("max_entries", r.maxEntries),
		)
	}
}

// Peek returns the entry for a virtual path without creating it or
// changing its LRU position.
func (r *Registry) Peek(virtualPath string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Peek(virtualPath)
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// MaxEntries returns the configured bound.
func (r *Registry) MaxEntries() int {
	return r.maxEntries
}

// Keys returns the tracked virtual paths from least to most recently used.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Keys()
}

// Stats returns a snapshot of the registry counters. Materialization
// counters are filled in by the transcoder.
func (r *Registry) Stats() types.CacheStats {
	return types.CacheStats{
		Entries:      r.Len(),
		Hits:         r.hits.Load(),
		Misses:       r.misses.Load(),
		Evictions:    r.evictions.Load(),
		Requeues:     r.requeues.Load(),
		OverCapacity: r.overCapacity.Load(),
	}
}
