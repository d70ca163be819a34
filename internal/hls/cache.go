package hls

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// CacheEntry is the in-memory record of one cached stream.
type CacheEntry struct {
	Key            string
	WorkDir        string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Complete       bool
}

// CacheStore maps cache keys to on-disk work directories. Eviction is
// FIFO by insertion order, not LRU: a completed transcode is as useful
// later as now, and first-in-wins protects established playlists from
// a burst of novel items. LastAccessedAt is recorded but does not
// influence eviction.
type CacheStore struct {
	root       string
	maxEntries int
	maxAge     time.Duration
	logger     *slog.Logger
	metrics    *Metrics

	mu      sync.Mutex
	entries map[string]*CacheEntry
	order   []string // FIFO queue of keys, oldest first
}

// NewCacheStore creates a cache rooted at root. The directory is
// created if missing.
func NewCacheStore(root string, maxEntries int, maxAge time.Duration, logger *slog.Logger, metrics *Metrics) (*CacheStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CacheStore{
		root:       root,
		maxEntries: maxEntries,
		maxAge:     maxAge,
		logger:     logger,
		metrics:    metrics,
		entries:    make(map[string]*CacheEntry),
	}, nil
}

// Root returns the cache root directory.
func (c *CacheStore) Root() string { return c.root }

// WorkDirFor maps a cache key to its work directory. The key's slashes
// become nested directories under the root.
func (c *CacheStore) WorkDirFor(key string) string {
	return filepath.Join(c.root, filepath.FromSlash(key))
}

// Get returns the entry for key iff its work directory still exists,
// its playlist passes the completeness check, and it has not outlived
// the TTL. Any other state unregisters the entry and reports absent,
// so partial directories left by crashes heal on next touch.
// LastAccessedAt is updated on hit.
func (c *CacheStore) Get(key string) *CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.metrics.CacheMisses.Inc()
		return nil
	}

	if _, err := os.Stat(entry.WorkDir); err != nil {
		c.evictLocked(key, false)
		c.metrics.CacheMisses.Inc()
		return nil
	}

	if time.Since(entry.CreatedAt) > c.maxAge {
		c.evictLocked(key, true)
		c.metrics.CacheMisses.Inc()
		return nil
	}

	if !playlistComplete(entry.WorkDir) {
		// A transcoder may still be writing here; unregister without
		// touching the directory. The registry decides the writer's fate.
		c.evictLocked(key, false)
		c.metrics.CacheMisses.Inc()
		return nil
	}

	entry.Complete = true
	entry.LastAccessedAt = time.Now()
	c.metrics.CacheHits.Inc()
	return entry
}

// Put records (or refreshes) an entry. A previous entry for the same
// key loses its queue position, and its directory is deleted when it
// differs from the new one. If the registry then exceeds the cap, the
// queue head is evicted.
func (c *CacheStore) Put(key, workDir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeFromOrderLocked(key)
		if old.WorkDir != workDir {
			c.deleteDirAsync(old.WorkDir)
		}
	}

	now := time.Now()
	c.entries[key] = &CacheEntry{
		Key:            key,
		WorkDir:        workDir,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	c.order = append(c.order, key)

	for len(c.order) > c.maxEntries {
		c.evictLocked(c.order[0], true)
	}
}

// Remove explicitly evicts a key and deletes its directory.
func (c *CacheStore) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.evictLocked(key, true)
	}
}

// SweepExpired evicts entries past the TTL or whose directory vanished.
// Called by the janitor loop.
func (c *CacheStore) SweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	for key, entry := range c.entries {
		if time.Since(entry.CreatedAt) > c.maxAge {
			stale = append(stale, key)
			continue
		}
		if _, err := os.Stat(entry.WorkDir); err != nil {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		c.evictLocked(key, true)
	}

	if len(stale) > 0 {
		c.logger.Info("cache sweep evicted entries", slog.Int("count", len(stale)))
	}
}

// Len reports the number of registered entries.
func (c *CacheStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the registered keys in FIFO order (oldest first).
func (c *CacheStore) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// evictLocked removes a key's record and optionally its directory.
// Deletion is best-effort and asynchronous; the in-memory entry goes
// regardless, so a stubborn directory cannot block progress.
func (c *CacheStore) evictLocked(key string, deleteDir bool) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.removeFromOrderLocked(key)
	c.metrics.CacheEvictions.Inc()

	if deleteDir {
		c.deleteDirAsync(entry.WorkDir)
	}
}

func (c *CacheStore) removeFromOrderLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// deleteDirAsync removes a work directory without blocking the caller.
// The directory is first renamed to a tombstone so the original path is
// immediately free for a replacement transcode; the slow recursive
// delete then runs on the tombstone.
func (c *CacheStore) deleteDirAsync(dir string) {
	target := dir + ".evicted-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.Rename(dir, target); err != nil {
		if os.IsNotExist(err) {
			return
		}
		target = dir
	}
	go func() {
		if err := os.RemoveAll(target); err != nil {
			c.logger.Warn("failed to delete work directory", "dir", target, "error", err)
		}
	}()
}
