package model

import "time"

// Song represents a single audio file in the library.
//
// ID is assigned from the file fingerprint (path + size + mtime) the first
// time the file is seen and stays stable afterwards: a move keeps the old ID,
// a content replacement produces a new one. Tag edits never factor in.
type Song struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	AlbumTitle  string    `json:"albumTitle"`
	AlbumID     string    `json:"albumId"`
	TrackNo     int       `json:"trackNo,omitempty"`
	Year        int       `json:"year,omitempty"`
	DurationMS  int       `json:"durationMs,omitempty"`
	BitrateKbps int       `json:"bitrateKbps,omitempty"`
	Format      string    `json:"format,omitempty"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modTime"`
	AddedAt     time.Time `json:"addedAt"`

	// Path to the audio file on disk, not exposed in API responses.
	Path string `json:"-"`

	// Fingerprint is the current path+size+mtime key; it changes on move or
	// modification while ID does not necessarily follow.
	Fingerprint string `json:"fingerprint,omitempty"`

	// ContentHash is the SHA-1 of the file contents, computed once when the
	// file is first indexed. Move detection matches on it.
	ContentHash string `json:"contentHash,omitempty"`

	// HasArtwork reports whether the file carries embedded artwork.
	HasArtwork bool `json:"hasArtwork,omitempty"`

	// Duplicate marks a non-canonical copy of another logical track.
	// CanonicalID then points at the canonical Song. Duplicates stay in the
	// index; nothing is ever deleted from disk.
	Duplicate   bool   `json:"duplicate,omitempty"`
	CanonicalID string `json:"canonicalId,omitempty"`
}

// MetadataFields counts the non-empty descriptive fields of the song. Used as
// a completeness measure when picking the canonical copy among duplicates.
func (s *Song) MetadataFields() int {
	n := 0
	if s.Title != "" {
		n++
	}
	if s.Artist != "" {
		n++
	}
	if s.AlbumTitle != "" {
		n++
	}
	if s.TrackNo > 0 {
		n++
	}
	if s.DurationMS > 0 {
		n++
	}
	if s.BitrateKbps > 0 {
		n++
	}
	return n
}
