package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Ariami/config"
	"Ariami/core/library"
	"Ariami/core/session"
	"Ariami/logger"
	"Ariami/model"
)

// APIHandler carries the shared dependencies of every HTTP handler.
type APIHandler struct {
	library    *library.Manager
	sessions   *session.Manager
	transcoder Transcoder
	cfg        *config.Config
	startedAt  time.Time
}

// NewAPIHandler wires the handler set. A nil transcoder gets the passthrough
// implementation that serves files as stored.
func NewAPIHandler(lib *library.Manager, sessions *session.Manager, transcoder Transcoder, cfg *config.Config) *APIHandler {
	if transcoder == nil {
		transcoder = Passthrough{}
	}
	return &APIHandler{
		library:    lib,
		sessions:   sessions,
		transcoder: transcoder,
		cfg:        cfg,
		startedAt:  time.Now(),
	}
}

type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "token"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write response failed", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// SessionMiddleware rejects requests that do not carry a valid session
// token. Every failure mode gets the same response so a client cannot tell
// expired, evicted and forged tokens apart.
func (h *APIHandler) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			// Browsers cannot set headers on websocket dials.
			token = r.URL.Query().Get("token")
		}

		sess, err := h.sessions.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_session", "session is not valid")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// SessionFromContext returns the session attached by SessionMiddleware.
func SessionFromContext(ctx context.Context) (model.Session, error) {
	sess, ok := ctx.Value(sessionContextKey).(model.Session)
	if !ok {
		return model.Session{}, fmt.Errorf("no session in context")
	}
	return sess, nil
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// HealthHandler is the unauthenticated liveness probe.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
