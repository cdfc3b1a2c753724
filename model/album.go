package model

// Album groups canonical songs that share a normalized (artist, title) pair.
// The ID is derived deterministically from that pair, so the same album keeps
// the same ID across independent rebuilds.
type Album struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Artist  string   `json:"artist"`
	Year    int      `json:"year,omitempty"`
	SongIDs []string `json:"songIds"`

	// ArtworkPath points at the artwork source: either an image file next to
	// the album's songs, or the audio file whose embedded artwork was picked.
	// Empty when the album has no artwork. Not exposed in API responses.
	ArtworkPath     string `json:"-"`
	ArtworkEmbedded bool   `json:"-"`
	HasArtwork      bool   `json:"hasArtwork"`
}

// AlbumWithSongs bundles an album with its resolved songs for API responses.
type AlbumWithSongs struct {
	Album Album   `json:"album"`
	Songs []*Song `json:"songs"`
}
