// Package session manages the lifecycle of remote device sessions: connect,
// heartbeat, expiry and disconnect.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"Ariami/logger"
	"Ariami/model"
)

// ErrInvalidSession is returned for every token problem: unknown, expired,
// disconnected, malformed or badly signed. Callers must not be able to tell
// whether a token ever existed.
var ErrInvalidSession = errors.New("session: invalid or expired session")

// tokenClaims is the payload of a session token. The token only names the
// session; the server-side table stays the authority on validity, so
// disconnect and expiry revoke a token no matter what it says.
type tokenClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager tracks active sessions. Safe for concurrent use.
type Manager struct {
	secret      []byte
	timeout     time.Duration
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*model.Session // keyed by session id
}

// NewManager creates a session manager. timeout is the heartbeat window;
// maxSessions caps concurrent devices, evicting the stalest session when
// exceeded.
func NewManager(secret string, timeout time.Duration, maxSessions int) *Manager {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Manager{
		secret:      []byte(secret),
		timeout:     timeout,
		maxSessions: maxSessions,
		sessions:    map[string]*model.Session{},
	}
}

// Connect establishes a session for the device and returns its token. A
// device reconnecting replaces its old session; the old token is dead from
// that moment.
func (m *Manager) Connect(deviceID, deviceName, version, platform string) (string, model.Session, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:            uuid.NewString(),
		DeviceID:      deviceID,
		DeviceName:    deviceName,
		Version:       version,
		Platform:      platform,
		EstablishedAt: now,
		LastSeenAt:    now,
	}

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.DeviceID == deviceID {
			delete(m.sessions, id)
		}
	}
	m.sessions[sess.ID] = sess
	m.evictOverflowLocked()
	m.mu.Unlock()

	token, err := m.sign(sess.ID, now)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, sess.ID)
		m.mu.Unlock()
		return "", model.Session{}, err
	}

	logger.Info("device connected",
		logger.String("device", deviceName), logger.String("platform", platform))
	return token, *sess, nil
}

// evictOverflowLocked drops oldest-heartbeat sessions until under the cap.
func (m *Manager) evictOverflowLocked() {
	for len(m.sessions) > m.maxSessions {
		var oldest *model.Session
		for _, s := range m.sessions {
			if oldest == nil || s.LastSeenAt.Before(oldest.LastSeenAt) {
				oldest = s
			}
		}
		delete(m.sessions, oldest.ID)
		logger.Info("session evicted over capacity", logger.String("device", oldest.DeviceName))
	}
}

func (m *Manager) sign(sessionID string, now time.Time) (string, error) {
	claims := tokenClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// lookup verifies the token and returns the live session, applying the lazy
// expiry check. Every failure maps to ErrInvalidSession.
func (m *Manager) lookup(token string) (*model.Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.SessionID == "" {
		return nil, ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[claims.SessionID]
	if !ok {
		return nil, ErrInvalidSession
	}
	if time.Since(sess.LastSeenAt) > m.timeout {
		delete(m.sessions, sess.ID)
		return nil, ErrInvalidSession
	}
	return sess, nil
}

// Validate checks the token and returns the session it names.
func (m *Manager) Validate(token string) (model.Session, error) {
	sess, err := m.lookup(token)
	if err != nil {
		return model.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return *sess, nil
}

// Heartbeat refreshes the session's last-seen time.
func (m *Manager) Heartbeat(token string) (model.Session, error) {
	sess, err := m.lookup(token)
	if err != nil {
		return model.Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.LastSeenAt = time.Now().UTC()
	return *sess, nil
}

// Disconnect invalidates the token immediately.
func (m *Manager) Disconnect(token string) error {
	sess, err := m.lookup(token)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess.ID)
	logger.Info("device disconnected", logger.String("device", sess.DeviceName))
	return nil
}

// Count returns the number of live (non-expired) sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if time.Since(s.LastSeenAt) <= m.timeout {
			n++
		}
	}
	return n
}

// Sweep removes expired sessions and returns how many were dropped. The
// lazy check in lookup already refuses them; the sweep just frees memory.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, s := range m.sessions {
		if time.Since(s.LastSeenAt) > m.timeout {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}
