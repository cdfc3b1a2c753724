package library

import (
	"time"

	"Ariami/model"
	"Ariami/store"
)

const snapshotStoreKey = "library"

const snapshotStoreVersion = 1

// The API models hide filesystem paths from JSON, so persistence uses its
// own record types that keep them.

type persistedSong struct {
	Song model.Song `json:"song"`
	Path string     `json:"path"`
}

type persistedAlbum struct {
	Album           model.Album `json:"album"`
	ArtworkPath     string      `json:"artworkPath,omitempty"`
	ArtworkEmbedded bool        `json:"artworkEmbedded,omitempty"`
}

type persistedLibrary struct {
	Songs       []persistedSong   `json:"songs"`
	Albums      []persistedAlbum  `json:"albums"`
	Folders     *model.FolderNode `json:"folders,omitempty"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

func saveSnapshot(st *store.Store, snapshot *model.LibrarySnapshot) error {
	p := persistedLibrary{
		Folders:     snapshot.Folders,
		GeneratedAt: snapshot.GeneratedAt,
	}
	for _, s := range snapshot.Songs {
		p.Songs = append(p.Songs, persistedSong{Song: *s, Path: s.Path})
	}
	for _, a := range snapshot.Albums {
		p.Albums = append(p.Albums, persistedAlbum{
			Album:           *a,
			ArtworkPath:     a.ArtworkPath,
			ArtworkEmbedded: a.ArtworkEmbedded,
		})
	}
	return st.Save(snapshotStoreKey, snapshotStoreVersion, p)
}

func loadSnapshot(st *store.Store) (*model.LibrarySnapshot, error) {
	var p persistedLibrary
	if err := st.Load(snapshotStoreKey, snapshotStoreVersion, &p); err != nil {
		return nil, err
	}

	snapshot := &model.LibrarySnapshot{
		Songs:       make(map[string]*model.Song, len(p.Songs)),
		Albums:      make(map[string]*model.Album, len(p.Albums)),
		Folders:     p.Folders,
		GeneratedAt: p.GeneratedAt,
	}
	for i := range p.Songs {
		song := p.Songs[i].Song
		song.Path = p.Songs[i].Path
		snapshot.Songs[song.ID] = &song
	}
	for i := range p.Albums {
		album := p.Albums[i].Album
		album.ArtworkPath = p.Albums[i].ArtworkPath
		album.ArtworkEmbedded = p.Albums[i].ArtworkEmbedded
		snapshot.Albums[album.ID] = &album
	}
	return snapshot, nil
}
