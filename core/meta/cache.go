package meta

import (
	"sync"

	"Ariami/logger"
	"Ariami/store"
)

const cacheStoreKey = "metacache"

const cacheStoreVersion = 1

// Entry is one cached extraction result.
type Entry struct {
	Fingerprint string   `json:"fingerprint"`
	Path        string   `json:"path"`
	Meta        Metadata `json:"meta"`
	MissedScans int      `json:"missedScans"`
}

// Cache persists extractor output keyed by file fingerprint. A fingerprint
// hit on rescan skips extraction entirely, which is the dominant cost saver
// for large libraries with few changes.
//
// Entries are pruned once their path has been absent from graceScans
// consecutive scans; the grace period tolerates a transiently unmounted
// volume. A new fingerprint for a known path evicts the stale entry at once.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry // keyed by fingerprint
	byPath     map[string]string // path -> fingerprint
	seen       map[string]struct{}
	graceScans int
	st         *store.Store
}

// NewCache creates an empty cache backed by st.
func NewCache(st *store.Store, graceScans int) *Cache {
	if graceScans < 1 {
		graceScans = 1
	}
	return &Cache{
		entries:    map[string]*Entry{},
		byPath:     map[string]string{},
		seen:       map[string]struct{}{},
		graceScans: graceScans,
		st:         st,
	}
}

// Load restores the persisted cache index. A missing or unreadable record is
// a cold start, not an error.
func (c *Cache) Load() {
	var entries []*Entry
	if err := c.st.Load(cacheStoreKey, cacheStoreVersion, &entries); err != nil {
		logger.Info("metadata cache cold start", logger.ErrorField(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[e.Fingerprint] = e
		c.byPath[e.Path] = e.Fingerprint
	}
	logger.Info("metadata cache loaded", logger.Int("entries", len(entries)))
}

// Save persists the cache index.
func (c *Cache) Save() error {
	c.mu.Lock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	return c.st.Save(cacheStoreKey, cacheStoreVersion, entries)
}

// Get returns the cached metadata for the fingerprint and marks it as seen
// in the current scan.
func (c *Cache) Get(fingerprint string) (Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return Metadata{}, false
	}
	c.seen[fingerprint] = struct{}{}
	return e.Meta, true
}

// Put stores the extraction result for the fingerprint. An older entry for
// the same path (a changed fingerprint) is evicted immediately.
func (c *Cache) Put(fingerprint, path string, m Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byPath[path]; ok && old != fingerprint {
		delete(c.entries, old)
	}
	c.entries[fingerprint] = &Entry{Fingerprint: fingerprint, Path: path, Meta: m}
	c.byPath[path] = fingerprint
	c.seen[fingerprint] = struct{}{}
}

// BeginScan resets the per-scan seen set.
func (c *Cache) BeginScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = map[string]struct{}{}
}

// EndScan ages every entry not seen during the scan and prunes the ones
// absent for the configured grace period. Returns the number pruned.
func (c *Cache) EndScan() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for fp, e := range c.entries {
		if _, ok := c.seen[fp]; ok {
			e.MissedScans = 0
			continue
		}
		e.MissedScans++
		if e.MissedScans >= c.graceScans {
			delete(c.entries, fp)
			if c.byPath[e.Path] == fp {
				delete(c.byPath, e.Path)
			}
			pruned++
		}
	}
	return pruned
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
