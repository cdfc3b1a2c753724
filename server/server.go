// Package server exposes the library over HTTP: session establishment,
// library queries, artwork and range-capable audio streaming, plus a
// websocket feed of change events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"Ariami/config"
	"Ariami/core/library"
	"Ariami/core/session"
	"Ariami/logger"
)

// Server owns the HTTP listener and its routes.
type Server struct {
	cfg        *config.Config
	handler    *APIHandler
	httpServer *http.Server
}

// New assembles the router and the underlying http.Server.
func New(cfg *config.Config, lib *library.Manager, sessions *session.Manager, transcoder Transcoder) *Server {
	handler := NewAPIHandler(lib, sessions, transcoder, cfg)

	s := &Server{
		cfg:     cfg,
		handler: handler,
		httpServer: &http.Server{
			Addr:        ":" + cfg.ServerPort,
			ReadTimeout: 30 * time.Second,
			// Streaming a long song over a slow link can legitimately take
			// minutes, so only reads are bounded.
			IdleTimeout: 120 * time.Second,
		},
	}
	s.httpServer.Handler = s.buildRouter()
	return s
}

// Router returns the assembled handler.
func (s *Server) Router() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) buildRouter() http.Handler {
	h := s.handler
	router := mux.NewRouter()

	router.Use(corsMiddleware)

	router.HandleFunc("/api/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/connect", h.ConnectHandler).Methods(http.MethodPost)

	router.HandleFunc("/api/disconnect", h.SessionMiddleware(h.DisconnectHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/heartbeat", h.SessionMiddleware(h.HeartbeatHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/status", h.SessionMiddleware(h.StatusHandler)).Methods(http.MethodGet)

	router.HandleFunc("/api/library", h.SessionMiddleware(h.LibraryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}", h.SessionMiddleware(h.AlbumHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/albums/{id}/artwork", h.SessionMiddleware(h.ArtworkHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.SessionMiddleware(h.SongHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/stream/{song_id}", h.SessionMiddleware(h.StreamHandler)).Methods(http.MethodGet, http.MethodHead)

	router.HandleFunc("/api/events", h.SessionMiddleware(h.EventsHandler)).Methods(http.MethodGet)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests with a
// five second grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", logger.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
