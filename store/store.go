// Package store persists application state as versioned key→value JSON
// records on disk. Each record is a whole file replaced atomically on write
// (temp file + rename), so a crash mid-write leaves either the old record or
// the new one, never a torn mix.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("store: record not found")
	// ErrCorrupt means the record exists but cannot be decoded. Callers
	// treat it as a cold start.
	ErrCorrupt = errors.New("store: record corrupt")
	// ErrVersion means the record was written by an incompatible version.
	ErrVersion = errors.New("store: record version mismatch")
)

// envelope wraps every persisted record with its schema version.
type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Store writes JSON records into a directory, one file per key.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Save marshals value and atomically replaces the record for key.
func (s *Store) Save(key string, version int, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", key, err)
	}

	env := envelope{
		Version: version,
		SavedAt: time.Now().UTC(),
		Data:    data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", key, err)
	}

	final := s.path(key)
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace record %s: %w", key, err)
	}
	return nil
}

// Load reads the record for key into value. Returns ErrNotFound, ErrCorrupt
// or ErrVersion as appropriate.
func (s *Store) Load(key string, version int, value interface{}) error {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read record %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if env.Version != version {
		return fmt.Errorf("%w: %s: have %d want %d", ErrVersion, key, env.Version, version)
	}
	if err := json.Unmarshal(env.Data, value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// Delete removes the record for key. Missing records are not an error.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record %s: %w", key, err)
	}
	return nil
}
