package server

import (
	"encoding/json"
	"net/http"
	"time"

	"Ariami/logger"
)

type connectRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Version    string `json:"version"`
	Platform   string `json:"platform"`
}

type connectResponse struct {
	SessionID        string `json:"sessionId"`
	Token            string `json:"token"`
	HeartbeatSeconds int    `json:"heartbeatSeconds"`
}

// ConnectHandler establishes a session for a device and hands back its
// token. Connecting again from the same device replaces the old session.
func (h *APIHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	token, sess, err := h.sessions.Connect(req.DeviceID, req.DeviceName, req.Version, req.Platform)
	if err != nil {
		logger.Error("connect failed", logger.String("device", req.DeviceID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not establish session")
		return
	}

	writeJSON(w, http.StatusOK, connectResponse{
		SessionID:        sess.ID,
		Token:            token,
		HeartbeatSeconds: int(h.cfg.HeartbeatTimeout.Seconds() / 2),
	})
}

// HeartbeatHandler refreshes the session's liveness clock.
func (h *APIHandler) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Heartbeat(tokenFromContext(r.Context())); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_session", "session is not valid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"serverTime": time.Now().UTC().Format(time.RFC3339),
	})
}

// DisconnectHandler ends the session immediately.
func (h *APIHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := SessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_session", "session is not valid")
		return
	}
	if err := h.sessions.Disconnect(tokenFromContext(r.Context())); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_session", "session is not valid")
		return
	}
	logger.Info("client disconnected", logger.String("session", sess.ID))
	w.WriteHeader(http.StatusNoContent)
}
