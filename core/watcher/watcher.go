// Package watcher turns OS filesystem notifications on the music root into
// debounced incremental scan requests.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"Ariami/logger"
)

// Watcher subscribes to change notifications below root and calls
// requestScan with the affected subtree once a burst of events has been
// quiet for the debounce window. An empty subtree argument means a full
// scan; that is the fallback when the notification backend reports it
// dropped events.
type Watcher struct {
	root        string
	window      time.Duration
	requestScan func(subtree string)

	mu       sync.Mutex
	dirty    map[string]struct{}
	overflow bool
}

// New creates a watcher for root. requestScan is invoked from the watcher's
// own goroutine and must not block for long.
func New(root string, window time.Duration, requestScan func(subtree string)) *Watcher {
	return &Watcher{
		root:        filepath.Clean(root),
		window:      window,
		requestScan: requestScan,
		dirty:       map[string]struct{}{},
	}
}

// Run watches until ctx is cancelled. The debounce timer resets on every
// event, so a copy of a large album triggers one scan, not hundreds.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}
	logger.Info("folder watcher started",
		logger.String("root", w.root), logger.Duration("debounce", w.window))

	trigger := debounce.New(w.window)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// New directories must be watched before their contents settle.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, event.Name); err != nil {
						logger.Warn("watch new directory failed",
							logger.String("dir", event.Name), logger.ErrorField(err))
					}
				}
			}
			w.markDirty(event.Name)
			trigger(w.flush)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("notification overflow, falling back to full scan")
				w.mu.Lock()
				w.overflow = true
				w.mu.Unlock()
				trigger(w.flush)
				continue
			}
			logger.Warn("watcher error", logger.ErrorField(err))
		}
	}
}

// relevant filters out events for files the library will never index.
// Directory events always count since they may carry audio below them.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return true
	}
	// Removed entries cannot be stat'ed; let the scan sort them out.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext != ".tmp" && ext != ".part"
}

func (w *Watcher) markDirty(path string) {
	dir := filepath.Dir(filepath.Clean(path))
	w.mu.Lock()
	w.dirty[dir] = struct{}{}
	w.mu.Unlock()
}

// flush fires once the debounce window has been quiet. It collapses the
// dirty set into a single subtree request.
func (w *Watcher) flush() {
	w.mu.Lock()
	dirty := w.dirty
	overflow := w.overflow
	w.dirty = map[string]struct{}{}
	w.overflow = false
	w.mu.Unlock()

	if overflow {
		w.requestScan("")
		return
	}
	if len(dirty) == 0 {
		return
	}

	subtree := w.commonSubtree(dirty)
	logger.Debug("watcher triggering scan", logger.String("subtree", subtree))
	w.requestScan(subtree)
}

// commonSubtree finds the deepest directory containing every dirty path.
// Returns "" (full scan) when that directory is the root itself or lies
// outside it.
func (w *Watcher) commonSubtree(dirty map[string]struct{}) string {
	var common string
	for dir := range dirty {
		if common == "" {
			common = dir
			continue
		}
		for common != w.root && !containsDir(common, dir) {
			common = filepath.Dir(common)
		}
	}
	if common == "" || common == w.root || !containsDir(w.root, common) {
		return ""
	}
	return common
}

func containsDir(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// addRecursive registers dir and every directory below it.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("watch skip", logger.String("path", path), logger.ErrorField(err))
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}
