package ledger

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

const ledgerFile = "ledger.json"

type ledgerDocument struct {
	CompletedBatches []string  `json:"completed_batches"`
	CompletedSeries  []string  `json:"completed_series"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Ledger records completed batches and series so finished work is skipped
// across runs. Mutations persist before returning, matching the queue's
// durability contract.
type Ledger struct {
	mu      sync.Mutex
	path    string
	batches map[string]struct{}
	series  map[string]struct{}
	logger  *slog.Logger
}

// NewLedger loads the progress document from dir. A corrupt document
// degrades to an empty cold start.
func NewLedger(dir string, logger *slog.Logger) (*Ledger, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	l := &Ledger{
		path:    filepath.Join(dir, ledgerFile),
		batches: make(map[string]struct{}),
		series:  make(map[string]struct{}),
		logger:  logging.NewComponentLogger(logger, "ledger"),
	}

	var doc ledgerDocument
	if _, err := state.ReadDocument(l.path, &doc); err != nil {
		if !errors.Is(err, state.ErrCorrupt) {
			return nil, err
		}
		l.logger.Warn("ledger document unreadable, starting with empty progress",
			logging.Error(err),
			logging.String(logging.FieldEventType, "state_cold_start"),
		)
	}
	for _, batch := range doc.CompletedBatches {
		if batch != "" {
			l.batches[batch] = struct{}{}
		}
	}
	for _, series := range doc.CompletedSeries {
		if series != "" {
			l.series[series] = struct{}{}
		}
	}
	return l, nil
}

// IsBatchDone reports whether a batch has already been published.
func (l *Ledger) IsBatchDone(batch string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.batches[batch]
	return ok
}

// IsSeriesDone reports whether an entire series has already been published.
func (l *Ledger) IsSeriesDone(series string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.series[series]
	return ok
}

// MarkBatchDone records a published batch.
func (l *Ledger) MarkBatchDone(batch string) error {
	if batch == "" {
		return errors.New("batch name is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches[batch] = struct{}{}
	return l.persistLocked()
}

// MarkSeriesDone records a fully published series.
func (l *Ledger) MarkSeriesDone(series string) error {
	if series == "" {
		return errors.New("series name is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.series[series] = struct{}{}
	return l.persistLocked()
}

// Counts returns the number of completed batches and series.
func (l *Ledger) Counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.batches), len(l.series)
}

func (l *Ledger) persistLocked() error {
	doc := ledgerDocument{
		CompletedBatches: sortedKeys(l.batches),
		CompletedSeries:  sortedKeys(l.series),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := state.WriteDocument(l.path, doc); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
