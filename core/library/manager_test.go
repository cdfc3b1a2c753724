package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"Ariami/core/meta"
	"Ariami/model"
	"Ariami/store"
)

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

type managerFixture struct {
	root      string
	manager   *Manager
	processor *Processor
	st        *store.Store
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	root := t.TempDir()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cache := meta.NewCache(st, 3)
	processor := NewProcessor(root, cache, NewDuplicateDetector(nil))
	return &managerFixture{
		root:      root,
		manager:   NewManager(root, processor, cache, st),
		processor: processor,
		st:        st,
	}
}

func (f *managerFixture) scanAndWait(t *testing.T) {
	t.Helper()
	f.manager.RequestScan("")
	if !f.manager.WaitIdle(15 * time.Second) {
		t.Fatal("scan cycle did not finish")
	}
}

// collectChanges runs one scan while subscribed and returns the change
// events it produced.
func (f *managerFixture) collectChanges(t *testing.T) []model.FileChange {
	t.Helper()
	events, cancel := f.manager.Subscribe()
	defer cancel()

	f.manager.RequestScan("")

	var changes []model.FileChange
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventChanges:
				changes = append(changes, ev.Changes...)
			case EventScanComplete, EventError:
				return changes
			}
		case <-deadline:
			t.Fatal("no scan completion event")
		}
	}
}

func TestScanEmptyRootYieldsEmptySnapshot(t *testing.T) {
	f := newManagerFixture(t)
	f.scanAndWait(t)

	snapshot := f.manager.Current()
	if len(snapshot.Songs) != 0 || len(snapshot.Albums) != 0 {
		t.Errorf("empty root produced %d songs, %d albums",
			len(snapshot.Songs), len(snapshot.Albums))
	}
	if f.manager.Status().State != StateIdle {
		t.Errorf("state = %s, want idle", f.manager.Status().State)
	}
}

func TestSingleFileBecomesSongAndAlbum(t *testing.T) {
	f := newManagerFixture(t)
	writeTestFile(t, filepath.Join(f.root, "Artist", "Album", "A.mp3"), "fake mp3 bytes")
	f.scanAndWait(t)

	snapshot := f.manager.Current()
	if len(snapshot.Songs) != 1 {
		t.Fatalf("got %d songs, want 1", len(snapshot.Songs))
	}
	if len(snapshot.Albums) != 1 {
		t.Fatalf("got %d albums, want 1", len(snapshot.Albums))
	}
	for _, album := range snapshot.Albums {
		if album.Title != "Album" || album.Artist != "Artist" {
			t.Errorf("album = %q by %q, want Album by Artist", album.Title, album.Artist)
		}
		if len(album.SongIDs) != 1 {
			t.Errorf("album members = %v", album.SongIDs)
		}
	}
}

func TestRescanWithoutChangesHitsCache(t *testing.T) {
	f := newManagerFixture(t)
	writeTestFile(t, filepath.Join(f.root, "Artist", "Album", "A.mp3"), "fake mp3 bytes")
	writeTestFile(t, filepath.Join(f.root, "Artist", "Album", "B.mp3"), "other mp3 bytes")
	f.scanAndWait(t)

	extracted := f.processor.ExtractedCount()
	if extracted == 0 {
		t.Fatal("first scan extracted nothing")
	}

	changes := f.collectChanges(t)
	if len(changes) != 0 {
		t.Errorf("rescan of unchanged library produced changes: %+v", changes)
	}
	if got := f.processor.ExtractedCount(); got != extracted {
		t.Errorf("rescan extracted %d more files, want 0", got-extracted)
	}
}

func TestRenameBecomesSingleMove(t *testing.T) {
	f := newManagerFixture(t)
	oldPath := filepath.Join(f.root, "Artist", "Album", "A.mp3")
	writeTestFile(t, oldPath, "fake mp3 bytes")
	f.scanAndWait(t)

	var songID string
	for id := range f.manager.Current().Songs {
		songID = id
	}

	newPath := filepath.Join(f.root, "Artist", "Album", "B.mp3")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	changes := f.collectChanges(t)
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want exactly one", changes)
	}
	c := changes[0]
	if c.Type != model.ChangeMoved {
		t.Errorf("change type = %s, want moved", c.Type)
	}
	if c.SongID != songID {
		t.Errorf("move changed the song identity: %s vs %s", c.SongID, songID)
	}
	if c.OldPath != oldPath || c.Path != newPath {
		t.Errorf("move paths = %s -> %s", c.OldPath, c.Path)
	}

	if got := f.manager.Current().Songs[songID]; got == nil || got.Path != newPath {
		t.Error("snapshot does not carry the moved song under its old id")
	}
}

func TestMidCycleRequestsCoalesceToOneRescan(t *testing.T) {
	f := newManagerFixture(t)
	writeTestFile(t, filepath.Join(f.root, "Artist", "Album", "01 - First.mp3"), "first audio contents")

	events, cancel := f.manager.Subscribe()
	defer cancel()

	// RequestScan marks the cycle running before it returns, so the two
	// follow-up requests are guaranteed to arrive mid-cycle. Both must fold
	// into a single pending rescan that runs once the cycle finishes.
	f.manager.RequestScan("")
	writeTestFile(t, filepath.Join(f.root, "Artist", "Album", "02 - Second.mp3"), "second audio contents")
	f.manager.RequestScan("")
	f.manager.RequestScan("")

	started := 0
	deadline := time.After(15 * time.Second)
	done := false
	for !done {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventScanStarted:
				started++
			case EventScanComplete:
				// A cancelled first cycle completes nothing; either way the
				// completion that follows the second start is the rescan's.
				if started == 2 {
					done = true
				}
			case EventError:
				t.Fatalf("scan failed: %s", ev.Error)
			}
		case <-deadline:
			t.Fatalf("cycles did not finish, %d starts seen", started)
		}
	}

	// The pending flag is consumed once; no third cycle may follow.
	select {
	case ev := <-events:
		if ev.Type == EventScanStarted {
			t.Fatal("an extra rescan ran after the coalesced one")
		}
	case <-time.After(200 * time.Millisecond):
	}

	snapshot := f.manager.Current()
	if len(snapshot.Songs) != 2 {
		t.Fatalf("songs = %d, want 2: the rescan must see the write that "+
			"arrived mid-cycle", len(snapshot.Songs))
	}
	if state := f.manager.Status().State; state != StateIdle {
		t.Errorf("state = %s, want idle", state)
	}
}

func TestContentChangeIsModified(t *testing.T) {
	f := newManagerFixture(t)
	path := filepath.Join(f.root, "Artist", "Album", "A.mp3")
	writeTestFile(t, path, "first contents")
	f.scanAndWait(t)

	var oldID string
	for id := range f.manager.Current().Songs {
		oldID = id
	}

	writeTestFile(t, path, "replacement contents, longer")
	changes := f.collectChanges(t)
	if len(changes) != 1 || changes[0].Type != model.ChangeModified {
		t.Fatalf("changes = %+v, want one modified", changes)
	}
	if changes[0].SongID == oldID {
		t.Error("file replacement kept the old song identity")
	}
}

func TestDeletedFileIsRemoved(t *testing.T) {
	f := newManagerFixture(t)
	path := filepath.Join(f.root, "Artist", "Album", "A.mp3")
	writeTestFile(t, path, "fake mp3 bytes")
	f.scanAndWait(t)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	changes := f.collectChanges(t)
	if len(changes) != 1 || changes[0].Type != model.ChangeRemoved {
		t.Fatalf("changes = %+v, want one removed", changes)
	}
	if len(f.manager.Current().Songs) != 0 {
		t.Error("removed song still in snapshot")
	}
}

func TestWarmStartFromPersistedSnapshot(t *testing.T) {
	f := newManagerFixture(t)
	writeTestFile(t, filepath.Join(f.root, "Artist", "Album", "A.mp3"), "fake mp3 bytes")
	f.scanAndWait(t)

	cache := meta.NewCache(f.st, 3)
	processor := NewProcessor(f.root, cache, NewDuplicateDetector(nil))
	fresh := NewManager(f.root, processor, cache, f.st)
	fresh.LoadPersisted()

	snapshot := fresh.Current()
	if len(snapshot.Songs) != 1 || len(snapshot.Albums) != 1 {
		t.Fatalf("warm start restored %d songs, %d albums",
			len(snapshot.Songs), len(snapshot.Albums))
	}
	for _, s := range snapshot.Songs {
		if s.Path == "" {
			t.Error("persisted song lost its file path")
		}
	}
}

func TestScanErrorSurfacesAndRecovers(t *testing.T) {
	f := newManagerFixture(t)
	missing := filepath.Join(f.root, "gone")

	bad := NewManager(missing, f.processor, meta.NewCache(f.st, 3), f.st)
	badEvents, badCancel := bad.Subscribe()
	defer badCancel()

	bad.RequestScan("")
	if !bad.WaitIdle(15 * time.Second) {
		t.Fatal("cycle did not finish")
	}

	sawError := false
	for {
		select {
		case ev := <-badEvents:
			if ev.Type == EventError {
				sawError = true
			}
			continue
		default:
		}
		break
	}
	if !sawError {
		t.Error("root failure did not produce an error event")
	}
	if bad.Status().State != StateIdle {
		t.Errorf("state after error = %s, want idle", bad.Status().State)
	}
}
