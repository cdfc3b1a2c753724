package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"
)

func collect(t *testing.T, root string) []FileInfo {
	t.Helper()
	ch, err := Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("scan %s: %v", root, err)
	}
	var files []FileInfo
	for f := range ch {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanEmptyRoot(t *testing.T) {
	files := collect(t, t.TempDir())
	if len(files) != 0 {
		t.Errorf("got %d files from empty root, want 0", len(files))
	}
}

func TestScanFindsAudioFilesRecursively(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), "mp3 bytes")
	writeFile(t, filepath.Join(root, "Artist", "Album", "01 song.flac"), "flac bytes")
	writeFile(t, filepath.Join(root, "Artist", "Album", "cover.jpg"), "not audio")
	writeFile(t, filepath.Join(root, "notes.txt"), "not audio")

	files := collect(t, root)
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}
	if filepath.Base(files[0].Path) != "01 song.flac" {
		t.Errorf("unexpected first file %s", files[0].Path)
	}
	if files[1].Size != int64(len("mp3 bytes")) {
		t.Errorf("size = %d, want %d", files[1].Size, len("mp3 bytes"))
	}
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("got %v, want *ScanError", err)
	}
}

func TestScanRootIsFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.mp3")
	writeFile(t, path, "x")

	_, err := Scan(context.Background(), path)
	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("got %v, want *ScanError", err)
	}
}

func TestScanSymlinkCycleTerminates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	writeFile(t, filepath.Join(sub, "song.mp3"), "x")
	if err := os.Symlink(root, filepath.Join(sub, "loop")); err != nil {
		t.Skipf("symlink: %v", err)
	}

	done := make(chan []FileInfo, 1)
	go func() { done <- collect(t, root) }()

	select {
	case files := <-done:
		if len(files) != 1 {
			t.Errorf("got %d files, want 1", len(files))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("scan did not terminate with a symlink cycle")
	}
}

func TestScanSymlinkedFileReportsTargetInfo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	root := t.TempDir()
	targetDir := t.TempDir()
	target := filepath.Join(targetDir, "song.dat")
	contents := "forty two bytes of audio payload, roughly"
	writeFile(t, target, contents)
	if err := os.Symlink(target, filepath.Join(root, "linked.mp3")); err != nil {
		t.Skipf("symlink: %v", err)
	}

	files := collect(t, root)
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	if files[0].Size != int64(len(contents)) {
		t.Errorf("size = %d, want the target's %d", files[0].Size, len(contents))
	}
	targetInfo, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if !files[0].ModTime.Equal(targetInfo.ModTime()) {
		t.Errorf("mtime = %v, want the target's %v", files[0].ModTime, targetInfo.ModTime())
	}
}

func TestFingerprintStability(t *testing.T) {
	now := time.Now()
	a := FileInfo{Path: "/music/a.mp3", Size: 10, ModTime: now}
	b := FileInfo{Path: "/music/a.mp3", Size: 10, ModTime: now}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical files produced different fingerprints")
	}

	c := FileInfo{Path: "/music/a.mp3", Size: 11, ModTime: now}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("size change did not change the fingerprint")
	}

	d := FileInfo{Path: "/music/b.mp3", Size: 10, ModTime: now}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("path change did not change the fingerprint")
	}
}

func TestContentHashIgnoresPathAndMtime(t *testing.T) {
	root := t.TempDir()
	p1 := filepath.Join(root, "a.mp3")
	p2 := filepath.Join(root, "b.mp3")
	writeFile(t, p1, "same bytes")
	writeFile(t, p2, "same bytes")

	h1, err := ContentHash(p1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ContentHash(p2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("same contents produced different hashes")
	}
}
