package library

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"Ariami/model"
)

// folderArtworkNames are checked, in order, when no member song carries
// embedded artwork.
var folderArtworkNames = []string{
	"cover.jpg", "cover.jpeg", "cover.png",
	"folder.jpg", "folder.jpeg", "folder.png",
	"front.jpg", "front.png",
	"album.jpg", "album.png",
}

// AlbumID derives the stable album id from the normalized (artist, title)
// pair. The same pair always hashes to the same id, which clients rely on
// for artwork caching.
func AlbumID(artist, title string) string {
	h := sha1.New()
	fmt.Fprintf(h, "album|%s|%s", normalizeKey(artist), normalizeKey(title))
	return hex.EncodeToString(h.Sum(nil))
}

// singletonAlbumID gives an ungroupable song a deterministic album of its
// own, keyed by the song's stable identity.
func singletonAlbumID(songID string) string {
	h := sha1.New()
	fmt.Fprintf(h, "singleton|%s", songID)
	return hex.EncodeToString(h.Sum(nil))
}

// BuildAlbums groups canonical songs into albums and assigns every song
// (duplicates included) its album reference. Track order within an album is
// track number ascending, ties broken by filename.
func BuildAlbums(songs []*model.Song) map[string]*model.Album {
	albums := map[string]*model.Album{}
	members := map[string][]*model.Song{}

	for _, s := range songs {
		var id string
		var album *model.Album
		if s.AlbumTitle == "" {
			id = singletonAlbumID(canonicalID(s))
			album = &model.Album{ID: id, Title: s.Title, Artist: s.Artist}
		} else {
			id = AlbumID(s.Artist, s.AlbumTitle)
			album = &model.Album{ID: id, Title: s.AlbumTitle, Artist: s.Artist}
		}

		if existing, ok := albums[id]; ok {
			album = existing
		} else {
			albums[id] = album
		}
		s.AlbumID = id
		members[id] = append(members[id], s)
	}

	for id, album := range albums {
		songs := members[id]
		sort.Slice(songs, func(i, j int) bool {
			if songs[i].TrackNo != songs[j].TrackNo {
				// Untracked songs sort last.
				if songs[i].TrackNo == 0 || songs[j].TrackNo == 0 {
					return songs[j].TrackNo == 0
				}
				return songs[i].TrackNo < songs[j].TrackNo
			}
			return filepath.Base(songs[i].Path) < filepath.Base(songs[j].Path)
		})

		album.SongIDs = album.SongIDs[:0]
		for _, s := range songs {
			if album.Year == 0 && s.Year > 0 {
				album.Year = s.Year
			}
			if s.Duplicate {
				continue
			}
			album.SongIDs = append(album.SongIDs, s.ID)
		}
		if len(album.SongIDs) == 0 {
			// Every member was a duplicate of a song in another album;
			// keep the duplicates listed so the album is not empty.
			for _, s := range songs {
				album.SongIDs = append(album.SongIDs, s.ID)
			}
		}

		selectArtwork(album, songs)
	}

	return albums
}

// canonicalID follows a duplicate to its canonical song, so a duplicate's
// singleton album stays stable too.
func canonicalID(s *model.Song) string {
	if s.Duplicate && s.CanonicalID != "" {
		return s.CanonicalID
	}
	return s.ID
}

// selectArtwork picks the album artwork source: the first member song with
// embedded artwork, else an artwork file in a member's directory, else none.
func selectArtwork(album *model.Album, songs []*model.Song) {
	for _, s := range songs {
		if s.HasArtwork {
			album.ArtworkPath = s.Path
			album.ArtworkEmbedded = true
			album.HasArtwork = true
			return
		}
	}

	seen := map[string]struct{}{}
	for _, s := range songs {
		dir := filepath.Dir(s.Path)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		for _, name := range folderArtworkNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				album.ArtworkPath = candidate
				album.ArtworkEmbedded = false
				album.HasArtwork = true
				return
			}
		}
	}

	album.ArtworkPath = ""
	album.ArtworkEmbedded = false
	album.HasArtwork = false
}

// BuildFolderTree projects the song set onto the directory layout below
// root, for folder-based playlists.
func BuildFolderTree(root string, songs []*model.Song) *model.FolderNode {
	top := &model.FolderNode{Name: filepath.Base(root), Path: "."}
	nodes := map[string]*model.FolderNode{".": top}

	var nodeFor func(rel string) *model.FolderNode
	nodeFor = func(rel string) *model.FolderNode {
		if n, ok := nodes[rel]; ok {
			return n
		}
		parent := nodeFor(parentPath(rel))
		n := &model.FolderNode{Name: filepath.Base(rel), Path: rel}
		parent.Children = append(parent.Children, n)
		nodes[rel] = n
		return n
	}

	sorted := make([]*model.Song, len(songs))
	copy(sorted, songs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, s := range sorted {
		rel, err := filepath.Rel(root, s.Path)
		if err != nil {
			rel = filepath.Base(s.Path)
		}
		rel = filepath.ToSlash(filepath.Dir(rel))
		if rel == "" {
			rel = "."
		}
		node := nodeFor(rel)
		node.SongIDs = append(node.SongIDs, s.ID)
	}

	sortFolderTree(top)
	return top
}

func parentPath(rel string) string {
	parent := filepath.ToSlash(filepath.Dir(rel))
	if parent == rel || parent == "" || parent == "/" {
		return "."
	}
	return parent
}

func sortFolderTree(n *model.FolderNode) {
	sort.Slice(n.Children, func(i, j int) bool {
		return strings.ToLower(n.Children[i].Name) < strings.ToLower(n.Children[j].Name)
	})
	for _, c := range n.Children {
		sortFolderTree(c)
	}
}
