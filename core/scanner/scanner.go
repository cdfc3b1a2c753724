// Package scanner enumerates candidate audio files under a library root.
// Scans are read-only: nothing here mutates library state.
package scanner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Ariami/logger"
)

// supportedExtensions lists the audio containers the library recognizes.
var supportedExtensions = map[string]struct{}{
	".aac":  {},
	".aif":  {},
	".aiff": {},
	".alac": {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
	".wma":  {},
}

// ScanError reports a root-level failure. Per-file problems are skipped and
// logged, never wrapped in a ScanError.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// FileInfo is one candidate audio file found by a scan.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Fingerprint derives the cheap change-detection key for the file: the
// normalized path plus size plus mtime, hashed. Reading file contents is
// never required.
func (f FileInfo) Fingerprint() string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%d|%d", filepath.Clean(f.Path), f.Size, f.ModTime.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}

// Supported reports whether the path has a recognized audio extension.
func Supported(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan walks root and streams every regular audio file found. The returned
// channel is closed when the walk finishes or ctx is cancelled. A root that
// cannot be opened fails immediately with a ScanError; unreadable files and
// subdirectories below the root are skipped with a warning.
//
// Directory symlinks are followed, with a visited set of resolved paths so a
// symlink cycle cannot loop the walk forever.
func Scan(ctx context.Context, root string) (<-chan FileInfo, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("not a directory")}
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	out := make(chan FileInfo, 64)
	go func() {
		defer close(out)
		visited := make(map[string]struct{})
		walkDir(ctx, root, visited, out)
	}()
	return out, nil
}

// walkDir recursively emits audio files under dir. visited holds resolved
// directory paths already entered.
func walkDir(ctx context.Context, dir string, visited map[string]struct{}, out chan<- FileInfo) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		logger.Warn("skipping unresolvable directory",
			logger.String("dir", dir), logger.ErrorField(err))
		return
	}
	if _, seen := visited[real]; seen {
		return
	}
	visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("skipping unreadable directory",
			logger.String("dir", dir), logger.ErrorField(err))
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			walkDir(ctx, path, visited, out)
			continue
		}

		var info os.FileInfo
		if entry.Type()&os.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				logger.Warn("skipping broken symlink", logger.String("path", path))
				continue
			}
			if target.IsDir() {
				walkDir(ctx, path, visited, out)
				continue
			}
			// Size and mtime must describe the target, not the link itself.
			info = target
		}

		if !Supported(path) {
			continue
		}

		if info == nil {
			var err error
			info, err = entry.Info()
			if err != nil {
				logger.Warn("skipping unreadable file",
					logger.String("path", path), logger.ErrorField(err))
				continue
			}
		}

		select {
		case out <- FileInfo{Path: filepath.Clean(path), Size: info.Size(), ModTime: info.ModTime()}:
		case <-ctx.Done():
			return
		}
	}
}

// ContentHash computes the SHA-1 of the file contents, streamed from disk.
// Used for move detection: a moved file keeps its content hash while its
// path fingerprint changes.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
