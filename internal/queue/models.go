package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends an item's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Item represents a unit of work: a single video file or a folder of videos,
// depending on the configured discovery granularity.
type Item struct {
	// Identity is the stable repository-relative path. Immutable once created.
	Identity string `json:"identity"`
	// Size is the total byte size, informational and used by the priority heuristic.
	Size int64 `json:"size"`
	// FileCount is the number of files in a folder item; 1 for single videos.
	FileCount int       `json:"file_count"`
	Modified  time.Time `json:"modified"`
	Status    Status    `json:"status"`
	// Priority orders the queue, lower first. Fixed at enqueue time.
	Priority     int        `json:"priority"`
	AddedAt      time.Time  `json:"added_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NewItem constructs a pending work item with its priority fixed from the
// supplied heuristic thresholds.
func NewItem(identity string, size int64, fileCount int, modified time.Time, thresholds Thresholds) *Item {
	if fileCount <= 0 {
		fileCount = 1
	}
	return &Item{
		Identity:  identity,
		Size:      size,
		FileCount: fileCount,
		Modified:  modified,
		Status:    StatusPending,
		Priority:  PriorityFor(fileCount, size, thresholds),
		AddedAt:   time.Now().UTC(),
	}
}

// NewFileItem constructs a pending work item for a single video file.
func NewFileItem(identity string, size int64, modified time.Time, thresholds Thresholds) *Item {
	item := NewItem(identity, size, 1, modified, thresholds)
	item.Priority = PriorityForFile(size, thresholds)
	return item
}

// Thresholds holds the size/count boundaries of the priority heuristic.
type Thresholds struct {
	SmallFileCount  int
	SmallSizeBytes  int64
	MediumFileCount int
	MediumSizeBytes int64
}

// Priority bands. Small units first so the pipeline produces results early.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// PriorityFor computes an item's priority from its file count and total size.
// Both the count and size boundary must hold for a band to apply.
func PriorityFor(fileCount int, size int64, t Thresholds) int {
	if fileCount <= t.SmallFileCount && size <= t.SmallSizeBytes {
		return PriorityHigh
	}
	if fileCount <= t.MediumFileCount && size <= t.MediumSizeBytes {
		return PriorityMedium
	}
	return PriorityLow
}

// PriorityForFile computes a single video's priority. The folder thresholds
// describe whole-folder budgets, so they are scaled to a per-file share at
// the small-band file count: a lone file the size of a whole small folder is
// not small work.
func PriorityForFile(size int64, t Thresholds) int {
	divisor := int64(t.SmallFileCount)
	if divisor < 1 {
		divisor = 1
	}
	if size <= t.SmallSizeBytes/divisor {
		return PriorityHigh
	}
	if size <= t.MediumSizeBytes/divisor {
		return PriorityMedium
	}
	return PriorityLow
}
