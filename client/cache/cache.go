// Package cache is the client-side bounded store for downloaded songs and
// artwork. It keeps content files on disk with an in-memory LRU index and
// evicts oldest-accessed entries whenever the configured byte budget is
// exceeded.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"Ariami/logger"
	"Ariami/store"
)

// ContentType distinguishes the two kinds of cached content.
type ContentType string

const (
	ContentSong    ContentType = "song"
	ContentArtwork ContentType = "artwork"
)

// ErrContentTooLarge means a single item exceeds the whole cache budget and
// cannot be stored without breaking the size invariant.
var ErrContentTooLarge = errors.New("cache: content larger than cache limit")

const indexStoreKey = "clientcache"

const indexStoreVersion = 1

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// Entry is one cached item, as persisted in the index.
type Entry struct {
	ID         string      `json:"id"`
	Type       ContentType `json:"type"`
	Size       int64       `json:"size"`
	LastAccess time.Time   `json:"lastAccess"`
	File       string      `json:"file"`
}

// Cache is safe for concurrent use: every index mutation happens under one
// lock, so two concurrent upserts of the same id cannot both win and
// double-count size.
type Cache struct {
	dir string
	st  *store.Store

	mu      sync.Mutex
	limit   int64
	enabled bool
	size    int64
	lru     *list.List               // front is most recent; back is first to evict
	index   map[string]*list.Element // keyed by id|type
}

// New creates a cache storing content files under dir, with the given limit
// in megabytes.
func New(dir string, st *store.Store, limitMB int, enabled bool) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Cache{
		dir:     dir,
		st:      st,
		limit:   int64(limitMB) * 1024 * 1024,
		enabled: enabled,
		lru:     list.New(),
		index:   map[string]*list.Element{},
	}, nil
}

func key(id string, ct ContentType) string {
	return string(ct) + "|" + id
}

func (c *Cache) fileFor(id string, ct ContentType) string {
	name := unsafeFilenameChars.ReplaceAllString(id, "_")
	return fmt.Sprintf("%s-%s", ct, name)
}

// Put stores content and records now as its last access. If the insert
// pushes the total over the limit, oldest-accessed entries are evicted until
// the cache fits again. With the cache disabled Put is a no-op.
func (c *Cache) Put(id string, ct ContentType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil
	}
	if int64(len(data)) > c.limit {
		return ErrContentTooLarge
	}

	file := c.fileFor(id, ct)
	if err := os.WriteFile(filepath.Join(c.dir, file), data, 0644); err != nil {
		return fmt.Errorf("write cache content: %w", err)
	}

	k := key(id, ct)
	if elem, ok := c.index[k]; ok {
		// Upsert: replace in place, adjusting the accounted size once.
		old := elem.Value.(*Entry)
		c.size += int64(len(data)) - old.Size
		old.Size = int64(len(data))
		old.LastAccess = time.Now().UTC()
		c.lru.MoveToFront(elem)
	} else {
		entry := &Entry{
			ID:         id,
			Type:       ct,
			Size:       int64(len(data)),
			LastAccess: time.Now().UTC(),
			File:       file,
		}
		c.index[k] = c.lru.PushFront(entry)
		c.size += entry.Size
	}

	c.evictLocked()
	c.saveIndexLocked()
	return nil
}

// Get returns the content if present and refreshes its last access: a read
// counts as use for eviction purposes.
func (c *Cache) Get(id string, ct ContentType) ([]byte, bool) {
	c.mu.Lock()
	elem, ok := c.index[key(id, ct)]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	entry := elem.Value.(*Entry)
	entry.LastAccess = time.Now().UTC()
	c.lru.MoveToFront(elem)
	path := filepath.Join(c.dir, entry.File)
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("cached content unreadable, dropping entry",
			logger.String("file", path), logger.ErrorField(err))
		c.mu.Lock()
		c.removeLocked(elem)
		c.saveIndexLocked()
		c.mu.Unlock()
		return nil, false
	}
	return data, true
}

// Contains reports presence without counting as an access.
func (c *Cache) Contains(id string, ct ContentType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[key(id, ct)]
	return ok
}

// SetLimit changes the byte budget. A limit already exceeded triggers an
// immediate eviction pass; otherwise the new limit applies from the next one.
func (c *Cache) SetLimit(mb int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = int64(mb) * 1024 * 1024
	if c.size > c.limit {
		c.evictLocked()
		c.saveIndexLocked()
	}
}

// SetEnabled toggles new writes. Disabling does not clear existing entries.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Clear removes every entry and its content file.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.lru.Len() > 0 {
		c.removeLocked(c.lru.Back())
	}
	c.saveIndexLocked()
}

// Size returns the total bytes currently stored.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// evictLocked drops entries oldest-last-accessed-first until under the
// limit. Eviction is normal operation, not an error.
func (c *Cache) evictLocked() {
	for c.size > c.limit {
		back := c.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*Entry)
		logger.Debug("cache eviction",
			logger.String("id", entry.ID), logger.Int64("size", entry.Size))
		c.removeLocked(back)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := c.lru.Remove(elem).(*Entry)
	delete(c.index, key(entry.ID, entry.Type))
	c.size -= entry.Size
	if err := os.Remove(filepath.Join(c.dir, entry.File)); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove cached content failed",
			logger.String("file", entry.File), logger.ErrorField(err))
	}
}

// saveIndexLocked persists the entry index in recency order. Failures are
// logged; the cache keeps serving from memory.
func (c *Cache) saveIndexLocked() {
	entries := make([]Entry, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		entries = append(entries, *e.Value.(*Entry))
	}
	if err := c.st.Save(indexStoreKey, indexStoreVersion, entries); err != nil {
		logger.Warn("persist cache index failed", logger.ErrorField(err))
	}
}

// Load restores the persisted index, dropping entries whose content file
// has gone missing. A missing or corrupt index is a cold start.
func (c *Cache) Load() {
	var entries []Entry
	if err := c.st.Load(indexStoreKey, indexStoreVersion, &entries); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("cache index unusable, starting cold", logger.ErrorField(err))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Entries were saved front-to-back, so appending at the back preserves
	// the recency order.
	for i := range entries {
		entry := entries[i]
		info, err := os.Stat(filepath.Join(c.dir, entry.File))
		if err != nil || info.Size() != entry.Size {
			continue
		}
		c.index[key(entry.ID, entry.Type)] = c.lru.PushBack(&entry)
		c.size += entry.Size
	}
	c.evictLocked()
	logger.Info("client cache loaded",
		logger.Int("entries", c.lru.Len()), logger.Int64("bytes", c.size))
}
