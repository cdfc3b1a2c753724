package library

import (
	"path/filepath"
	"testing"

	"Ariami/model"
)

func TestAlbumIDDeterministic(t *testing.T) {
	a := AlbumID("The Artist", "Greatest Hits")
	b := AlbumID("the  artist", "GREATEST HITS")
	if a != b {
		t.Errorf("normalization-equivalent inputs gave different ids: %s vs %s", a, b)
	}

	c := AlbumID("The Artist", "Other Album")
	if a == c {
		t.Error("different albums collided")
	}
}

func albumSong(id, title, artist, album string, trackNo int, path string) *model.Song {
	return &model.Song{
		ID:         id,
		Title:      title,
		Artist:     artist,
		AlbumTitle: album,
		TrackNo:    trackNo,
		Path:       path,
	}
}

func TestBuildAlbumsGroupsAndOrders(t *testing.T) {
	songs := []*model.Song{
		albumSong("s2", "Second", "Artist", "Album", 2, "/m/Artist/Album/02 second.mp3"),
		albumSong("s1", "First", "Artist", "Album", 1, "/m/Artist/Album/01 first.mp3"),
		albumSong("s3", "Bonus", "Artist", "Album", 0, "/m/Artist/Album/bonus.mp3"),
	}

	albums := BuildAlbums(songs)
	if len(albums) != 1 {
		t.Fatalf("got %d albums, want 1", len(albums))
	}

	var album *model.Album
	for _, a := range albums {
		album = a
	}
	want := []string{"s1", "s2", "s3"}
	if len(album.SongIDs) != len(want) {
		t.Fatalf("song ids = %v", album.SongIDs)
	}
	for i, id := range want {
		if album.SongIDs[i] != id {
			t.Errorf("track order[%d] = %s, want %s", i, album.SongIDs[i], id)
		}
	}
	for _, s := range songs {
		if s.AlbumID != album.ID {
			t.Errorf("song %s album ref = %q, want %q", s.ID, s.AlbumID, album.ID)
		}
	}
}

func TestBuildAlbumsSingleton(t *testing.T) {
	loose := albumSong("s1", "Loose Track", "Artist", "", 0, "/m/loose.mp3")
	albums := BuildAlbums([]*model.Song{loose})
	if len(albums) != 1 {
		t.Fatalf("got %d albums, want 1", len(albums))
	}
	for _, a := range albums {
		if a.Title != "Loose Track" {
			t.Errorf("singleton title = %q", a.Title)
		}
	}

	// The singleton id must be stable across rebuilds.
	again := BuildAlbums([]*model.Song{albumSong("s1", "Loose Track", "Artist", "", 0, "/m/loose.mp3")})
	for id := range albums {
		if _, ok := again[id]; !ok {
			t.Error("singleton album id changed across rebuilds")
		}
	}
}

func TestBuildAlbumsExcludesDuplicates(t *testing.T) {
	canonical := albumSong("c", "Track", "Artist", "Album", 1, "/m/a/c.mp3")
	dup := albumSong("d", "Track", "Artist", "Album", 1, "/m/a/d.mp3")
	dup.Duplicate = true
	dup.CanonicalID = "c"

	albums := BuildAlbums([]*model.Song{canonical, dup})
	for _, a := range albums {
		for _, id := range a.SongIDs {
			if id == "d" {
				t.Error("duplicate listed among album tracks")
			}
		}
	}
}

func TestSelectArtworkPrefersEmbedded(t *testing.T) {
	withArt := albumSong("a", "One", "Artist", "Album", 1, "/m/a/one.mp3")
	withArt.HasArtwork = true
	plain := albumSong("b", "Two", "Artist", "Album", 2, "/m/a/two.mp3")

	albums := BuildAlbums([]*model.Song{plain, withArt})
	for _, album := range albums {
		if !album.HasArtwork || !album.ArtworkEmbedded || album.ArtworkPath != withArt.Path {
			t.Errorf("artwork = %+v, want embedded from %s", album, withArt.Path)
		}
	}
}

func TestSelectArtworkFolderFallback(t *testing.T) {
	dir := t.TempDir()
	coverPath := filepath.Join(dir, "cover.jpg")
	writeTestFile(t, coverPath, "jpeg bytes")

	s := albumSong("a", "One", "Artist", "Album", 1, filepath.Join(dir, "one.mp3"))
	albums := BuildAlbums([]*model.Song{s})
	for _, album := range albums {
		if !album.HasArtwork || album.ArtworkEmbedded || album.ArtworkPath != coverPath {
			t.Errorf("artwork = %+v, want folder file %s", album, coverPath)
		}
	}
}

func TestBuildFolderTree(t *testing.T) {
	root := filepath.Join("/m")
	songs := []*model.Song{
		albumSong("s1", "One", "A", "X", 1, filepath.Join(root, "A", "X", "one.mp3")),
		albumSong("s2", "Two", "A", "X", 2, filepath.Join(root, "A", "X", "two.mp3")),
		albumSong("s3", "Loose", "", "", 0, filepath.Join(root, "loose.mp3")),
	}

	tree := BuildFolderTree(root, songs)
	if len(tree.SongIDs) != 1 || tree.SongIDs[0] != "s3" {
		t.Errorf("root songs = %v, want [s3]", tree.SongIDs)
	}
	if len(tree.Children) != 1 || tree.Children[0].Name != "A" {
		t.Fatalf("root children = %+v", tree.Children)
	}
	a := tree.Children[0]
	if len(a.Children) != 1 || a.Children[0].Name != "X" {
		t.Fatalf("A children = %+v", a.Children)
	}
	if got := a.Children[0].SongIDs; len(got) != 2 {
		t.Errorf("X songs = %v", got)
	}
}
