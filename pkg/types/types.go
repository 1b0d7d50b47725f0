// Package types defines the core domain types for the transcoding filesystem.
package types

import (
	"math"
)

// SizeUnknown is the size reported for a cacheable file before its first
// successful materialization. It must be non-zero: copy tools that see a
// zero-length file create an empty destination without reading anything.
const SizeUnknown int64 = math.MaxInt64

// DefaultMaxCacheEntries is used when no cache size is configured.
const DefaultMaxCacheEntries = 50

// EntryStatus represents the materialization state of a cache entry.
type EntryStatus string

const (
	StatusEmpty         EntryStatus = "empty"         // Created, never transcoded
	StatusMaterializing EntryStatus = "materializing" // Transcode in progress
	StatusReady         EntryStatus = "ready"         // Buffer holds the complete output
	StatusFailed        EntryStatus = "failed"        // Last transcode did not complete
)

// Servable reports whether reads may be answered from the entry's buffer.
func (s EntryStatus) Servable() bool {
	return s == StatusReady
}

// MountConfig is the immutable per-mount configuration shared by every
// component. It is built once at startup and never mutated afterwards.
type MountConfig struct {
	SourceDir       string // Absolute path of the mirrored directory
	SourceExt       string // Extension of files that get transcoded, without the dot
	TargetExt       string // Extension presented in the mirror, without the dot
	Pipeline        string // Pipeline specification handed to the engine
	MaxCacheEntries int    // Upper bound on cached entries (soft, see cache.Registry)
	MaxEntryBytes   int64  // Upper bound on one entry's buffer, 0 means unlimited
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries          int    `json:"entries"`
	Hits             uint64 `json:"hits"`
	Misses           uint64 `json:"misses"`
	Evictions        uint64 `json:"evictions"`
	Requeues         uint64 `json:"requeues"`
	OverCapacity     uint64 `json:"over_capacity"`
	Materializations uint64 `json:"materializations"`
	Failures         uint64 `json:"failures"`
}

// HitRate returns the lookup hit rate as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100 / float64(total)
}
