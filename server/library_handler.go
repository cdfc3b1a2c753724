package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"Ariami/core/library"
	"Ariami/model"
)

type libraryResponse struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	SongCount   int               `json:"songCount"`
	Albums      []*model.Album    `json:"albums"`
	Folders     *model.FolderNode `json:"folders,omitempty"`
}

// LibraryHandler returns the album list and folder tree of the current
// snapshot. The snapshot is immutable so a scan running concurrently never
// changes what this response sees.
func (h *APIHandler) LibraryHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.library.Current()
	writeJSON(w, http.StatusOK, libraryResponse{
		GeneratedAt: snap.GeneratedAt,
		SongCount:   len(snap.Songs),
		Albums:      snap.AlbumList(),
		Folders:     snap.Folders,
	})
}

// AlbumHandler returns one album with its songs in track order.
func (h *APIHandler) AlbumHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.library.Current()
	album := snap.Album(mux.Vars(r)["id"])
	if album == nil {
		writeError(w, http.StatusNotFound, "not_found", "album not found")
		return
	}

	songs := make([]*model.Song, 0, len(album.SongIDs))
	for _, id := range album.SongIDs {
		if s := snap.Song(id); s != nil {
			songs = append(songs, s)
		}
	}
	writeJSON(w, http.StatusOK, model.AlbumWithSongs{Album: *album, Songs: songs})
}

// SongHandler returns one song by id.
func (h *APIHandler) SongHandler(w http.ResponseWriter, r *http.Request) {
	song := h.library.Current().Song(mux.Vars(r)["id"])
	if song == nil {
		writeError(w, http.StatusNotFound, "not_found", "song not found")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

type statusResponse struct {
	Library       library.Status `json:"library"`
	Sessions      int            `json:"sessions"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
}

// StatusHandler reports the manager state and connection count.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Library:       h.library.Status(),
		Sessions:      h.sessions.Count(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}
