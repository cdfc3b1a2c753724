package model

// ChangeType classifies a single library change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
	ChangeMoved    ChangeType = "moved"
)

// FileChange describes one change to the library, produced by a diff between
// a fresh scan and the current snapshot. A move carries the previous path and
// keeps the original song identity.
type FileChange struct {
	Type    ChangeType `json:"type"`
	SongID  string     `json:"songId"`
	Path    string     `json:"path"`
	OldPath string     `json:"oldPath,omitempty"`
}
