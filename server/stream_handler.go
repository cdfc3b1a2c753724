package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"Ariami/core/meta"
	"Ariami/logger"
	"Ariami/model"
)

// Transcoder prepares a song's audio for delivery. The returned reader must
// support seeking so range requests can be honored.
type Transcoder interface {
	Open(ctx context.Context, song *model.Song) (io.ReadSeekCloser, string, error)
}

// Passthrough serves the stored file unchanged.
type Passthrough struct{}

func (Passthrough) Open(_ context.Context, song *model.Song) (io.ReadSeekCloser, string, error) {
	f, err := os.Open(song.Path)
	if err != nil {
		return nil, "", err
	}
	return f, contentTypeForFormat(song.Format), nil
}

func contentTypeForFormat(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "ogg", "oga":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	case "m4a", "aac":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "wma":
		return "audio/x-ms-wma"
	default:
		return "application/octet-stream"
	}
}

// StreamHandler serves a song's audio bytes. Delegating to ServeContent
// gives correct Range handling: 206 partials, multi-range, If-Modified-Since
// and 416 for ranges past the end of the file.
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	song := h.library.Current().Song(mux.Vars(r)["song_id"])
	if song == nil {
		writeError(w, http.StatusNotFound, "not_found", "song not found")
		return
	}

	rs, contentType, err := h.transcoder.Open(r.Context(), song)
	if err != nil {
		// The file can disappear between snapshot and request; the next
		// scan cycle will drop the song.
		logger.Warn("song unreadable",
			logger.String("id", song.ID), logger.ErrorField(err))
		writeError(w, http.StatusNotFound, "not_found", "song content unavailable")
		return
	}
	defer rs.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(&rangeErrorWriter{ResponseWriter: w}, r, filepath.Base(song.Path), song.ModTime, rs)
}

// rangeErrorWriter rewrites ServeContent's plain-text 416 into the JSON
// error body the rest of the API speaks. Every other status passes through
// untouched.
type rangeErrorWriter struct {
	http.ResponseWriter
	suppressBody bool
}

func (w *rangeErrorWriter) WriteHeader(status int) {
	if status != http.StatusRequestedRangeNotSatisfiable {
		w.ResponseWriter.WriteHeader(status)
		return
	}
	w.suppressBody = true
	w.Header().Set("Content-Type", "application/json")
	w.Header().Del("X-Content-Type-Options")
	w.ResponseWriter.WriteHeader(status)
	if err := json.NewEncoder(w.ResponseWriter).Encode(errorBody{
		Error:   "range_not_satisfiable",
		Message: "requested range is outside the content",
	}); err != nil {
		logger.Error("write response failed", logger.ErrorField(err))
	}
}

func (w *rangeErrorWriter) Write(b []byte) (int, error) {
	if w.suppressBody {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// ArtworkHandler serves an album's artwork, embedded tags first, folder
// image files second.
func (h *APIHandler) ArtworkHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.library.Current()
	album := snap.Album(mux.Vars(r)["id"])
	if album == nil {
		writeError(w, http.StatusNotFound, "not_found", "album not found")
		return
	}
	if !album.HasArtwork || album.ArtworkPath == "" {
		writeError(w, http.StatusNotFound, "not_found", "album has no artwork")
		return
	}

	var data []byte
	var err error
	if album.ArtworkEmbedded {
		data, err = meta.EmbeddedImage(album.ArtworkPath)
	} else {
		data, err = os.ReadFile(album.ArtworkPath)
	}
	if err != nil || len(data) == 0 {
		logger.Warn("artwork unreadable",
			logger.String("album", album.ID), logger.ErrorField(err))
		writeError(w, http.StatusNotFound, "not_found", "artwork unavailable")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("write artwork failed", logger.ErrorField(err))
	}
}
