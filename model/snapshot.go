package model

import (
	"sort"
	"time"
)

// FolderNode is one directory in the folder-tree projection of the library.
// Paths are relative to the music root, slash separated.
type FolderNode struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	SongIDs  []string      `json:"songIds,omitempty"`
	Children []*FolderNode `json:"children,omitempty"`
}

// LibrarySnapshot is an immutable point-in-time view of the whole library.
// The library manager holds exactly one current snapshot and swaps it
// atomically; readers must never mutate one.
type LibrarySnapshot struct {
	Songs       map[string]*Song  `json:"songs"`
	Albums      map[string]*Album `json:"albums"`
	Folders     *FolderNode       `json:"folders,omitempty"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

// EmptySnapshot returns a snapshot with no content.
func EmptySnapshot() *LibrarySnapshot {
	return &LibrarySnapshot{
		Songs:       map[string]*Song{},
		Albums:      map[string]*Album{},
		GeneratedAt: time.Now().UTC(),
	}
}

// Song returns the song with the given id, or nil.
func (s *LibrarySnapshot) Song(id string) *Song {
	return s.Songs[id]
}

// Album returns the album with the given id, or nil.
func (s *LibrarySnapshot) Album(id string) *Album {
	return s.Albums[id]
}

// AlbumList returns the albums sorted by artist then title, for stable API
// responses.
func (s *LibrarySnapshot) AlbumList() []*Album {
	albums := make([]*Album, 0, len(s.Albums))
	for _, a := range s.Albums {
		albums = append(albums, a)
	}
	sort.Slice(albums, func(i, j int) bool {
		if albums[i].Artist != albums[j].Artist {
			return albums[i].Artist < albums[j].Artist
		}
		return albums[i].Title < albums[j].Title
	})
	return albums
}

// SongByPath returns the song stored under the given file path, or nil.
func (s *LibrarySnapshot) SongByPath(path string) *Song {
	for _, song := range s.Songs {
		if song.Path == path {
			return song
		}
	}
	return nil
}
