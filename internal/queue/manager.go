package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"anipipe/internal/logging"
	"anipipe/internal/state"
)

const (
	queueFile     = "queue.json"
	processedFile = "processed.json"
)

type queueDocument struct {
	Items     []*Item   `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

type processedDocument struct {
	Identities []string  `json:"identities"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Manager owns the live queue and the processed set. All mutating operations
// persist both documents before returning, so a crash loses at most the
// in-flight call. Single writer: the daemon holds a flock on the state
// directory.
type Manager struct {
	mu        sync.Mutex
	dir       string
	items     []*Item
	processed map[string]struct{}
	logger    *slog.Logger
}

// StatusSnapshot is a read-only view for observability.
type StatusSnapshot struct {
	QueueSize      int
	Processing     int
	ProcessedCount int
	NextUp         []*Item
}

// NewManager loads persisted queue state from dir. Corrupt documents degrade
// to an empty cold start; the processed set and queue are loaded
// independently so one surviving file still prevents rework.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		dir:       dir,
		processed: make(map[string]struct{}),
		logger:    logging.NewComponentLogger(logger, "queue"),
	}

	var qdoc queueDocument
	if _, err := state.ReadDocument(m.queuePath(), &qdoc); err != nil {
		if !errors.Is(err, state.ErrCorrupt) {
			return nil, err
		}
		m.logger.Warn("queue document unreadable, starting with empty queue",
			logging.Error(err),
			logging.String(logging.FieldEventType, "state_cold_start"),
		)
	}
	for _, item := range qdoc.Items {
		if item == nil || item.Identity == "" {
			continue
		}
		if _, ok := ParseStatus(string(item.Status)); !ok {
			item.Status = StatusPending
		}
		m.items = append(m.items, item)
	}

	var pdoc processedDocument
	if _, err := state.ReadDocument(m.processedPath(), &pdoc); err != nil {
		if !errors.Is(err, state.ErrCorrupt) {
			return nil, err
		}
		m.logger.Warn("processed document unreadable, starting with empty processed set",
			logging.Error(err),
			logging.String(logging.FieldEventType, "state_cold_start"),
		)
	}
	for _, identity := range pdoc.Identities {
		if identity != "" {
			m.processed[identity] = struct{}{}
		}
	}

	m.sortLocked()
	return m, nil
}

func (m *Manager) queuePath() string     { return filepath.Join(m.dir, queueFile) }
func (m *Manager) processedPath() string { return filepath.Join(m.dir, processedFile) }

// Enqueue adds a pending item unless its identity is already processed or
// already present in the queue. Returns true when the item was added.
func (m *Manager) Enqueue(item *Item) (bool, error) {
	if item == nil || item.Identity == "" {
		return false, errors.New("item with identity is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.processed[item.Identity]; done {
		return false, nil
	}
	if m.findLocked(item.Identity) != nil {
		return false, nil
	}

	m.items = append(m.items, item)
	m.sortLocked()
	if err := m.persistQueueLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Dequeue claims the highest-priority, earliest-inserted pending item,
// marking it processing and persisting before returning. Returns nil when no
// pending item exists; the caller decides how to wait.
func (m *Manager) Dequeue() (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items {
		if item.Status != StatusPending {
			continue
		}
		now := time.Now().UTC()
		item.Status = StatusProcessing
		item.StartedAt = &now
		if err := m.persistQueueLocked(); err != nil {
			return nil, err
		}
		cp := *item
		return &cp, nil
	}
	return nil, nil
}

// MarkCompleted records a successful terminal outcome: the item's record is
// finalized and its identity joins the processed set.
func (m *Manager) MarkCompleted(identity string) error {
	return m.finish(identity, StatusCompleted, "")
}

// MarkFailed records a failed terminal outcome. The identity still joins the
// processed set so the item is not retried within the run; use ResetFailed
// for a manual retry.
func (m *Manager) MarkFailed(identity, reason string) error {
	return m.finish(identity, StatusFailed, reason)
}

func (m *Manager) finish(identity string, status Status, reason string) error {
	if identity == "" {
		return errors.New("identity is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	item := m.findLocked(identity)
	if item != nil {
		item.Status = status
		item.EndedAt = &now
		item.ErrorMessage = reason
	}
	m.processed[identity] = struct{}{}

	if err := m.persistQueueLocked(); err != nil {
		return err
	}
	return m.persistProcessedLocked()
}

// IsProcessed reports whether an identity is in the processed set.
func (m *Manager) IsProcessed(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[identity]
	return ok
}

// IsQueued reports whether an identity has a live (non-terminal) queue record.
func (m *Manager) IsQueued(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.findLocked(identity)
	return item != nil && !item.Status.IsTerminal()
}

// Snapshot returns a read-only view of the queue with up to nextN upcoming
// pending items.
func (m *Manager) Snapshot(nextN int) StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := StatusSnapshot{ProcessedCount: len(m.processed)}
	for _, item := range m.items {
		switch item.Status {
		case StatusPending:
			snap.QueueSize++
			if len(snap.NextUp) < nextN {
				cp := *item
				snap.NextUp = append(snap.NextUp, &cp)
			}
		case StatusProcessing:
			snap.Processing++
		}
	}
	return snap
}

// Items returns copies of all queue records, optionally filtered by status.
func (m *Manager) Items(statuses ...Status) []*Item {
	filter := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		filter[status] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Item
	for _, item := range m.items {
		if len(filter) > 0 {
			if _, ok := filter[item.Status]; !ok {
				continue
			}
		}
		cp := *item
		out = append(out, &cp)
	}
	return out
}

// Clear drops all queue records. The processed set is untouched.
func (m *Manager) Clear() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.items)
	m.items = nil
	if err := m.persistQueueLocked(); err != nil {
		return 0, err
	}
	return removed, nil
}

// ResetFailed removes failed identities from the processed set and drops
// their terminal records so discovery can enqueue them again. Returns the
// number of identities reset.
func (m *Manager) ResetFailed() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reset := 0
	kept := m.items[:0]
	for _, item := range m.items {
		if item.Status == StatusFailed {
			delete(m.processed, item.Identity)
			reset++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept

	if err := m.persistQueueLocked(); err != nil {
		return 0, err
	}
	if err := m.persistProcessedLocked(); err != nil {
		return 0, err
	}
	return reset, nil
}

// ReclaimProcessing returns claimed-but-unfinished items to pending. Called
// at startup: a processing record with no live worker is a crashed run, and
// the item retries from scratch.
func (m *Manager) ReclaimProcessing() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reclaimed := 0
	for _, item := range m.items {
		if item.Status == StatusProcessing {
			item.Status = StatusPending
			item.StartedAt = nil
			reclaimed++
		}
	}
	if reclaimed == 0 {
		return 0, nil
	}
	m.sortLocked()
	if err := m.persistQueueLocked(); err != nil {
		return 0, err
	}
	return reclaimed, nil
}

func (m *Manager) findLocked(identity string) *Item {
	for _, item := range m.items {
		if item.Identity == identity {
			return item
		}
	}
	return nil
}

// sortLocked orders pending items by priority then insertion time. Stable
// sort keeps insertion order among equal priorities.
func (m *Manager) sortLocked() {
	sort.SliceStable(m.items, func(i, j int) bool {
		a, b := m.items[i], m.items[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.AddedAt.Before(b.AddedAt)
	})
}

func (m *Manager) persistQueueLocked() error {
	doc := queueDocument{Items: m.items, UpdatedAt: time.Now().UTC()}
	if err := state.WriteDocument(m.queuePath(), doc); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

func (m *Manager) persistProcessedLocked() error {
	identities := make([]string, 0, len(m.processed))
	for identity := range m.processed {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	doc := processedDocument{Identities: identities, UpdatedAt: time.Now().UTC()}
	if err := state.WriteDocument(m.processedPath(), doc); err != nil {
		return fmt.Errorf("persist processed set: %w", err)
	}
	return nil
}
