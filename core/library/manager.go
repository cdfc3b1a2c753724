package library

import (
	"context"
	"errors"
	"sync"
	"time"

	"Ariami/core/meta"
	"Ariami/core/scanner"
	"Ariami/logger"
	"Ariami/model"
	"Ariami/store"
)

// State is the manager's position in the scan cycle.
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateDiffing  State = "diffing"
	StateApplying State = "applying"
	StateError    State = "error"
)

// EventType classifies manager events delivered to subscribers.
type EventType string

const (
	EventScanStarted  EventType = "scan-started"
	EventChanges      EventType = "changes"
	EventScanComplete EventType = "scan-complete"
	EventError        EventType = "error"
)

// Event is one notification published to subscribers.
type Event struct {
	Type    EventType          `json:"type"`
	Changes []model.FileChange `json:"changes,omitempty"`
	Stats   *CycleStats        `json:"stats,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// CycleStats summarizes the last completed scan cycle.
type CycleStats struct {
	CompletedAt time.Time `json:"completedAt"`
	FilesSeen   int       `json:"filesSeen"`
	Added       int       `json:"added"`
	Modified    int       `json:"modified"`
	Moved       int       `json:"moved"`
	Removed     int       `json:"removed"`
	Pruned      int       `json:"pruned"`
	Error       string    `json:"error,omitempty"`
}

// Status is the externally visible manager state.
type Status struct {
	State     State       `json:"state"`
	Songs     int         `json:"songs"`
	Albums    int         `json:"albums"`
	LastCycle *CycleStats `json:"lastCycle,omitempty"`
}

// Manager owns the canonical in-memory library. It serializes scan cycles
// through a small state machine (Idle → Scanning → Diffing → Applying →
// Idle), swaps the current snapshot atomically on apply, and fans change
// events out to subscribers. At most one cycle runs at a time; a request
// arriving mid-cycle sets a rescan-pending flag instead of queueing.
type Manager struct {
	root      string
	processor *Processor
	cache     *meta.Cache
	st        *store.Store

	mu             sync.Mutex
	state          State
	running        bool
	current        *model.LibrarySnapshot
	cancel         context.CancelFunc
	pending        bool
	pendingSubtree string // "" means full scan
	lastCycle      *CycleStats

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// NewManager creates a manager starting from an empty library.
func NewManager(root string, processor *Processor, cache *meta.Cache, st *store.Store) *Manager {
	return &Manager{
		root:        root,
		processor:   processor,
		cache:       cache,
		st:          st,
		state:       StateIdle,
		current:     model.EmptySnapshot(),
		subscribers: map[int]chan Event{},
	}
}

// Current returns the current snapshot. The snapshot is immutable; callers
// read it freely and never block a scan in progress.
func (m *Manager) Current() *model.LibrarySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status reports the manager state and last-cycle stats.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:     m.state,
		Songs:     len(m.current.Songs),
		Albums:    len(m.current.Albums),
		LastCycle: m.lastCycle,
	}
}

// Subscribe registers for change events. The returned cancel function must
// be called to release the subscription. Slow subscribers drop events rather
// than stalling the manager.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Event, 16)
	m.subscribers[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// RequestScan asks for a scan cycle. An empty subtree means the whole music
// root. If a cycle is already running the request is coalesced into a single
// pending rescan, and the in-flight cycle is cancelled cooperatively unless
// it has reached the apply step.
func (m *Manager) RequestScan(subtree string) {
	m.mu.Lock()
	if m.running {
		m.pending = true
		m.pendingSubtree = mergeSubtrees(m.pendingSubtree, subtree)
		if m.cancel != nil && m.state != StateApplying {
			m.cancel()
		}
		m.mu.Unlock()
		return
	}
	m.running = true
	m.state = StateScanning
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.runCycle(ctx, subtree)
}

// mergeSubtrees coalesces two pending scan areas. Differing subtrees widen
// to a full scan; that scan subsumes both.
func mergeSubtrees(a, b string) string {
	if a == b {
		return a
	}
	if a == "" || b == "" {
		return ""
	}
	if underDir(a, b) {
		return a
	}
	if underDir(b, a) {
		return b
	}
	return ""
}

// runCycle executes one Scanning → Diffing → Applying pass.
func (m *Manager) runCycle(ctx context.Context, subtree string) {
	start := time.Now()
	root := m.root
	if subtree != "" {
		root = subtree
	}
	logger.Info("scan cycle started",
		logger.String("root", root), logger.Bool("partial", subtree != ""))
	m.publish(Event{Type: EventScanStarted})

	m.cache.BeginScan()
	stats, err := m.cycle(ctx, subtree, root)
	if err != nil {
		m.finishWithError(err)
		return
	}
	if stats == nil {
		// Cancelled before apply; the pending rescan takes over.
		m.finish(nil)
		return
	}

	stats.CompletedAt = time.Now().UTC()
	logger.Info("scan cycle complete",
		logger.Int("filesSeen", stats.FilesSeen),
		logger.Int("added", stats.Added),
		logger.Int("modified", stats.Modified),
		logger.Int("moved", stats.Moved),
		logger.Int("removed", stats.Removed),
		logger.Duration("elapsed", time.Since(start)))
	m.finish(stats)
}

// cycle does the actual work. A nil stats return with nil error means the
// cycle was cancelled before the apply step.
func (m *Manager) cycle(ctx context.Context, subtree, root string) (*CycleStats, error) {
	fileChan, err := scanner.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	var files []scanner.FileInfo
	for f := range fileChan {
		files = append(files, f)
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	m.setState(StateDiffing)
	result, err := m.processor.Process(ctx, m.Current(), files, subtree)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, err
	}

	// Past this point the cycle always completes: cancellation no longer
	// applies once Applying begins.
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return nil, nil
	}
	m.state = StateApplying
	m.current = result.Snapshot
	m.mu.Unlock()

	pruned := 0
	if subtree == "" {
		pruned = m.cache.EndScan()
	}
	if err := saveSnapshot(m.st, result.Snapshot); err != nil {
		logger.Error("persist snapshot failed", logger.ErrorField(err))
	}
	if err := m.cache.Save(); err != nil {
		logger.Error("persist metadata cache failed", logger.ErrorField(err))
	}

	if len(result.Changes) > 0 {
		m.publish(Event{Type: EventChanges, Changes: result.Changes})
	}

	stats := &CycleStats{FilesSeen: len(files), Pruned: pruned}
	for _, c := range result.Changes {
		switch c.Type {
		case model.ChangeAdded:
			stats.Added++
		case model.ChangeModified:
			stats.Modified++
		case model.ChangeMoved:
			stats.Moved++
		case model.ChangeRemoved:
			stats.Removed++
		}
	}
	return stats, nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// finish returns to Idle and starts the pending rescan, if any.
func (m *Manager) finish(stats *CycleStats) {
	m.mu.Lock()
	m.state = StateIdle
	m.running = false
	m.cancel = nil
	if stats != nil {
		m.lastCycle = stats
	}
	pending := m.pending
	subtree := m.pendingSubtree
	m.pending = false
	m.pendingSubtree = ""
	m.mu.Unlock()

	if stats != nil {
		m.publish(Event{Type: EventScanComplete, Stats: stats})
	}
	if pending {
		m.RequestScan(subtree)
	}
}

// finishWithError reports the failure and returns to Idle; the manager
// retries on the next watcher-triggered or manual request.
func (m *Manager) finishWithError(err error) {
	logger.Error("scan cycle failed", logger.ErrorField(err))
	m.setState(StateError)
	m.publish(Event{Type: EventError, Error: err.Error()})

	m.mu.Lock()
	m.lastCycle = &CycleStats{CompletedAt: time.Now().UTC(), Error: err.Error()}
	m.mu.Unlock()

	m.finish(nil)
}

// WaitIdle blocks until no cycle is running or the timeout elapses. Intended
// for one-shot CLI scans and tests.
func (m *Manager) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		idle := !m.running && !m.pending
		m.mu.Unlock()
		if idle {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// LoadPersisted restores the last applied snapshot for a warm start. Missing
// or corrupt state starts cold; corruption is logged, never fatal.
func (m *Manager) LoadPersisted() {
	snapshot, err := loadSnapshot(m.st)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("persisted snapshot unusable, starting cold", logger.ErrorField(err))
		}
		return
	}
	m.mu.Lock()
	m.current = snapshot
	m.mu.Unlock()
	logger.Info("library warm start",
		logger.Int("songs", len(snapshot.Songs)),
		logger.Int("albums", len(snapshot.Albums)))
}
