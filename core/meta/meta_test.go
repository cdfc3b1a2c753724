package meta

import (
	"path/filepath"
	"testing"

	"Ariami/store"
)

func newTestCache(t *testing.T, grace int) *Cache {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewCache(st, grace)
}

func TestFallbackMetadataFromPath(t *testing.T) {
	root := filepath.Join("music")
	path := filepath.Join(root, "The Artist", "The Album", "03 - A Song.mp3")

	m := fallbackMetadata(root, path)
	if m.Title != "A Song" {
		t.Errorf("title = %q, want %q", m.Title, "A Song")
	}
	if m.TrackNo != 3 {
		t.Errorf("trackNo = %d, want 3", m.TrackNo)
	}
	if m.Artist != "The Artist" {
		t.Errorf("artist = %q, want %q", m.Artist, "The Artist")
	}
	if m.Album != "The Album" {
		t.Errorf("album = %q, want %q", m.Album, "The Album")
	}
	if m.Format != "mp3" {
		t.Errorf("format = %q, want %q", m.Format, "mp3")
	}
}

func TestFallbackMetadataShallowFile(t *testing.T) {
	m := fallbackMetadata("music", filepath.Join("music", "loose track.ogg"))
	if m.Title != "loose track" {
		t.Errorf("title = %q", m.Title)
	}
	if m.Artist != "" || m.Album != "" {
		t.Errorf("expected empty artist/album, got %q/%q", m.Artist, m.Album)
	}
}

func TestParseTrackPrefix(t *testing.T) {
	cases := []struct {
		in        string
		wantNo    int
		wantTitle string
	}{
		{"07 - Seven", 7, "Seven"},
		{"01.One", 1, "One"},
		{"12_Twelve", 12, "Twelve"},
		{"No Number", 0, "No Number"},
		{"1999", 0, "1999"},
	}
	for _, c := range cases {
		no, title := parseTrackPrefix(c.in)
		if no != c.wantNo || title != c.wantTitle {
			t.Errorf("parseTrackPrefix(%q) = (%d, %q), want (%d, %q)",
				c.in, no, title, c.wantNo, c.wantTitle)
		}
	}
}

func TestParseNumericTag(t *testing.T) {
	if got := parseNumericTag("3/12"); got != 3 {
		t.Errorf("parseNumericTag(3/12) = %d, want 3", got)
	}
	if got := parseNumericTag(" 7 "); got != 7 {
		t.Errorf("parseNumericTag(7) = %d, want 7", got)
	}
	if got := parseNumericTag("x"); got != 0 {
		t.Errorf("parseNumericTag(x) = %d, want 0", got)
	}
}

func TestParseYearTag(t *testing.T) {
	if got := parseYearTag("2003-05-01"); got != 2003 {
		t.Errorf("parseYearTag = %d, want 2003", got)
	}
	if got := parseYearTag("unknown"); got != 0 {
		t.Errorf("parseYearTag = %d, want 0", got)
	}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := newTestCache(t, 3)

	if _, ok := c.Get("fp1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Put("fp1", "/music/a.mp3", Metadata{Title: "A"})
	m, ok := c.Get("fp1")
	if !ok || m.Title != "A" {
		t.Fatalf("get after put: ok=%v meta=%+v", ok, m)
	}
}

func TestCacheEvictsOnFingerprintChange(t *testing.T) {
	c := newTestCache(t, 3)

	c.Put("fp1", "/music/a.mp3", Metadata{Title: "old"})
	c.Put("fp2", "/music/a.mp3", Metadata{Title: "new"})

	if _, ok := c.Get("fp1"); ok {
		t.Error("stale fingerprint survived a replacement for the same path")
	}
	if m, ok := c.Get("fp2"); !ok || m.Title != "new" {
		t.Errorf("new entry missing: ok=%v meta=%+v", ok, m)
	}
}

func TestCachePruneAfterGraceScans(t *testing.T) {
	c := newTestCache(t, 2)
	c.Put("fp1", "/music/a.mp3", Metadata{Title: "A"})

	// First scan without the file: within grace, kept.
	c.BeginScan()
	if pruned := c.EndScan(); pruned != 0 {
		t.Fatalf("pruned %d after one missed scan, want 0", pruned)
	}
	if c.Len() != 1 {
		t.Fatal("entry pruned inside the grace period")
	}

	// Second consecutive miss hits the grace limit.
	c.BeginScan()
	if pruned := c.EndScan(); pruned != 1 {
		t.Fatalf("pruned %d after grace expiry, want 1", pruned)
	}
	if c.Len() != 0 {
		t.Error("entry survived past the grace period")
	}
}

func TestCacheSeenEntrySurvives(t *testing.T) {
	c := newTestCache(t, 1)
	c.Put("fp1", "/music/a.mp3", Metadata{Title: "A"})

	c.BeginScan()
	if _, ok := c.Get("fp1"); !ok {
		t.Fatal("expected hit")
	}
	if pruned := c.EndScan(); pruned != 0 {
		t.Fatalf("pruned %d, want 0", pruned)
	}
}

func TestCachePersistence(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	c := NewCache(st, 3)
	c.Put("fp1", "/music/a.mp3", Metadata{Title: "A", BitrateKbps: 320})
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewCache(st, 3)
	reloaded.Load()
	m, ok := reloaded.Get("fp1")
	if !ok || m.Title != "A" || m.BitrateKbps != 320 {
		t.Errorf("reloaded entry: ok=%v meta=%+v", ok, m)
	}
}
