package library

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"Ariami/core/meta"
	"Ariami/core/scanner"
	"Ariami/logger"
	"Ariami/model"
)

// Processor diffs a fresh scan against the current snapshot and produces the
// ordered change list plus the candidate snapshot.
type Processor struct {
	root     string
	cache    *meta.Cache
	detector *DuplicateDetector
	workers  int

	extracted atomic.Int64
}

// Result is the outcome of one diff.
type Result struct {
	Snapshot *model.LibrarySnapshot
	Changes  []model.FileChange
}

// ExtractedCount reports how many files have gone through full metadata
// extraction since the processor was created. Unchanged files served from
// the fingerprint cache do not count.
func (p *Processor) ExtractedCount() int64 {
	return p.extracted.Load()
}

// NewProcessor creates a processor for the given music root.
func NewProcessor(root string, cache *meta.Cache, detector *DuplicateDetector) *Processor {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return &Processor{root: root, cache: cache, detector: detector, workers: workers}
}

// extractTask is one file whose metadata must be resolved.
type extractTask struct {
	file scanner.FileInfo
	old  *model.Song // non-nil when the path existed with another fingerprint
}

// Process computes the diff. files is the scan result; a non-empty subtree
// means the scan covered only that directory and songs outside it are
// carried over unchanged.
//
// Move detection: a path that disappeared whose size and content hash match
// a newly appeared path is reported as a single Moved change and keeps its
// song identity, never a Removed+Added pair.
func (p *Processor) Process(ctx context.Context, prev *model.LibrarySnapshot, files []scanner.FileInfo, subtree string) (*Result, error) {
	prevByPath := map[string]*model.Song{}
	for _, s := range prev.Songs {
		prevByPath[s.Path] = s
	}

	newPaths := map[string]struct{}{}
	var carried []*model.Song
	var tasks []*extractTask

	for _, f := range files {
		newPaths[f.Path] = struct{}{}
		old := prevByPath[f.Path]
		if old != nil && old.Fingerprint == f.Fingerprint() {
			clone := *old
			carried = append(carried, &clone)
			// Keep the cache entry alive for the prune bookkeeping.
			p.cache.Get(old.Fingerprint)
			continue
		}
		tasks = append(tasks, &extractTask{file: f, old: old})
	}

	// Previous songs whose path vanished from the scanned area are removal
	// candidates until move matching has had its say.
	removedBySize := map[int64][]*model.Song{}
	var removalOrder []*model.Song
	for _, s := range prev.Songs {
		if _, ok := newPaths[s.Path]; ok {
			continue
		}
		if subtree != "" && !underDir(subtree, s.Path) {
			clone := *s
			carried = append(carried, &clone)
			p.cache.Get(s.Fingerprint)
			continue
		}
		removedBySize[s.Size] = append(removedBySize[s.Size], s)
		removalOrder = append(removalOrder, s)
	}

	var changes []model.FileChange
	moved := map[string]struct{}{} // old song IDs claimed by a move

	// Pass 1: match appearing files against removal candidates by size and
	// content hash. A match reuses the old song wholesale, so no
	// re-extraction happens and caches keyed by song id stay valid.
	var remaining []*extractTask
	for _, task := range tasks {
		if task.old != nil {
			remaining = append(remaining, task)
			continue
		}
		candidates := removedBySize[task.file.Size]
		if len(candidates) == 0 {
			remaining = append(remaining, task)
			continue
		}
		hash, err := scanner.ContentHash(task.file.Path)
		if err != nil {
			logger.Warn("content hash failed, treating as new file",
				logger.String("path", task.file.Path), logger.ErrorField(err))
			remaining = append(remaining, task)
			continue
		}
		match := claimByHash(removedBySize, task.file.Size, hash, moved)
		if match == nil {
			remaining = append(remaining, task)
			continue
		}

		clone := *match
		clone.Path = task.file.Path
		clone.Fingerprint = task.file.Fingerprint()
		clone.Size = task.file.Size
		clone.ModTime = task.file.ModTime
		carried = append(carried, &clone)
		// The metadata moved with the file; re-key the cache entry.
		p.cache.Put(clone.Fingerprint, clone.Path, songMetadata(&clone))
		changes = append(changes, model.FileChange{
			Type:    model.ChangeMoved,
			SongID:  clone.ID,
			Path:    clone.Path,
			OldPath: match.Path,
		})
	}

	// Pass 2: extract metadata for genuinely new or modified files.
	built, err := p.extractAll(ctx, remaining)
	if err != nil {
		return nil, err
	}
	for _, b := range built {
		carried = append(carried, b.song)
		if b.task.old != nil {
			changes = append(changes, model.FileChange{
				Type:   model.ChangeModified,
				SongID: b.song.ID,
				Path:   b.song.Path,
			})
		} else {
			changes = append(changes, model.FileChange{
				Type:   model.ChangeAdded,
				SongID: b.song.ID,
				Path:   b.song.Path,
			})
		}
	}

	// Whatever removal candidates were not claimed by a move are gone.
	for _, s := range removalOrder {
		if _, claimed := moved[s.ID]; claimed {
			continue
		}
		changes = append(changes, model.FileChange{
			Type:   model.ChangeRemoved,
			SongID: s.ID,
			Path:   s.Path,
		})
	}

	sortChanges(changes)

	snapshot := p.buildSnapshot(carried)
	return &Result{Snapshot: snapshot, Changes: changes}, nil
}

// claimByHash finds and claims the removal candidate with the given size and
// content hash. Returns nil when none matches.
func claimByHash(bySize map[int64][]*model.Song, size int64, hash string, moved map[string]struct{}) *model.Song {
	candidates := bySize[size]
	for i, c := range candidates {
		if _, claimed := moved[c.ID]; claimed {
			continue
		}
		if c.ContentHash != "" && c.ContentHash == hash {
			moved[c.ID] = struct{}{}
			bySize[size] = append(candidates[:i:i], candidates[i+1:]...)
			return c
		}
	}
	return nil
}

type builtSong struct {
	task *extractTask
	song *model.Song
}

// extractAll resolves metadata for the tasks with a worker pool, consulting
// the fingerprint cache before touching file contents.
func (p *Processor) extractAll(ctx context.Context, tasks []*extractTask) ([]*builtSong, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	taskChan := make(chan *extractTask)
	var mu sync.Mutex
	var built []*builtSong
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				song := p.buildSong(task)
				mu.Lock()
				built = append(built, &builtSong{task: task, song: song})
				mu.Unlock()
			}
		}()
	}

	var err error
loop:
	for _, task := range tasks {
		select {
		case taskChan <- task:
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		}
	}
	close(taskChan)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	sort.Slice(built, func(i, j int) bool { return built[i].song.Path < built[j].song.Path })
	return built, nil
}

// buildSong resolves one file into a song record. The song id is the file's
// fingerprint at creation time; a later move keeps the id while the
// fingerprint moves on.
func (p *Processor) buildSong(task *extractTask) *model.Song {
	f := task.file
	fp := f.Fingerprint()

	m, hit := p.cache.Get(fp)
	if !hit {
		m = meta.ExtractWithFallback(p.root, f.Path)
		p.cache.Put(fp, f.Path, m)
		p.extracted.Add(1)
	}

	hash, err := scanner.ContentHash(f.Path)
	if err != nil {
		logger.Warn("content hash failed",
			logger.String("path", f.Path), logger.ErrorField(err))
	}

	addedAt := time.Now().UTC()
	if task.old != nil {
		addedAt = task.old.AddedAt
	}

	return &model.Song{
		ID:          fp,
		Title:       m.Title,
		Artist:      m.Artist,
		AlbumTitle:  m.Album,
		TrackNo:     m.TrackNo,
		Year:        m.Year,
		DurationMS:  m.DurationMS,
		BitrateKbps: m.BitrateKbps,
		Format:      m.Format,
		Size:        f.Size,
		ModTime:     f.ModTime,
		AddedAt:     addedAt,
		Path:        f.Path,
		Fingerprint: fp,
		ContentHash: hash,
		HasArtwork:  m.HasArtwork,
	}
}

// buildSnapshot runs duplicate detection and album grouping over the final
// song set and assembles the immutable snapshot.
func (p *Processor) buildSnapshot(songs []*model.Song) *model.LibrarySnapshot {
	p.detector.Detect(songs)
	albums := BuildAlbums(songs)

	snapshot := &model.LibrarySnapshot{
		Songs:       make(map[string]*model.Song, len(songs)),
		Albums:      albums,
		Folders:     BuildFolderTree(p.root, songs),
		GeneratedAt: time.Now().UTC(),
	}
	for _, s := range songs {
		snapshot.Songs[s.ID] = s
	}
	return snapshot
}

// songMetadata reconstructs the cached metadata view of an existing song.
func songMetadata(s *model.Song) meta.Metadata {
	return meta.Metadata{
		Title:       s.Title,
		Artist:      s.Artist,
		Album:       s.AlbumTitle,
		TrackNo:     s.TrackNo,
		Year:        s.Year,
		DurationMS:  s.DurationMS,
		BitrateKbps: s.BitrateKbps,
		Format:      s.Format,
		HasArtwork:  s.HasArtwork,
	}
}

var changeOrder = map[model.ChangeType]int{
	model.ChangeAdded:    0,
	model.ChangeModified: 1,
	model.ChangeMoved:    2,
	model.ChangeRemoved:  3,
}

func sortChanges(changes []model.FileChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Type != changes[j].Type {
			return changeOrder[changes[i].Type] < changeOrder[changes[j].Type]
		}
		return changes[i].Path < changes[j].Path
	})
}

// underDir reports whether path sits below dir.
func underDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
