package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"anipipe/internal/catalog"
	"anipipe/internal/logging"
	"anipipe/internal/queue"
)

// Granularity selects the unit of work discovery produces.
const (
	GranularityItem   = "item"
	GranularityFolder = "folder"
)

// folderObservation tracks a folder's content hash and how long it has been
// unchanged. A hash change restarts the dwell clock.
type folderObservation struct {
	Hash        string
	StableSince time.Time
	LastCheck   time.Time
}

// Reconciler diffs catalog snapshots against the queue's known state and
// enqueues new work. Discovery is best-effort: listing failures are logged
// and retried on the next cycle.
type Reconciler struct {
	lister          catalog.Lister
	queue           *queue.Manager
	thresholds      queue.Thresholds
	granularity     string
	stabilityWindow time.Duration
	logger          *slog.Logger
	now             func() time.Time

	mu      sync.Mutex
	folders map[string]*folderObservation
}

// Options carries reconciler construction parameters.
type Options struct {
	Lister          catalog.Lister
	Queue           *queue.Manager
	Thresholds      queue.Thresholds
	Granularity     string
	StabilityWindow time.Duration
	Logger          *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewReconciler constructs a discovery reconciler.
func NewReconciler(opts Options) (*Reconciler, error) {
	if opts.Lister == nil {
		return nil, errors.New("catalog lister is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("queue manager is required")
	}
	granularity := opts.Granularity
	if granularity == "" {
		granularity = GranularityItem
	}
	if granularity != GranularityItem && granularity != GranularityFolder {
		return nil, errors.New("granularity must be item or folder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		lister:          opts.Lister,
		queue:           opts.Queue,
		thresholds:      opts.Thresholds,
		granularity:     granularity,
		stabilityWindow: opts.StabilityWindow,
		logger:          logging.NewComponentLogger(logger, "discovery"),
		now:             now,
		folders:         make(map[string]*folderObservation),
	}, nil
}

// Reconcile takes one catalog snapshot and enqueues any new stable work,
// returning the number of items added. Listing failures return zero with a
// log line; they never propagate.
func (r *Reconciler) Reconcile(ctx context.Context, backfill bool) int {
	snapshot, err := r.lister.Snapshot(ctx)
	if err != nil {
		r.logger.Warn("catalog listing failed, retrying next cycle",
			logging.Error(err),
			logging.String(logging.FieldEventType, "discovery_listing_failed"),
		)
		return 0
	}

	var added int
	if r.granularity == GranularityFolder {
		added = r.reconcileFolders(snapshot, backfill)
	} else {
		added = r.reconcileItems(snapshot)
	}
	if added > 0 {
		r.logger.Info("discovery enqueued new work",
			slog.Int("new_items", added),
			logging.String(logging.FieldEventType, "discovery_enqueued"),
		)
	}
	return added
}

func (r *Reconciler) reconcileItems(snapshot catalog.Snapshot) int {
	added := 0
	for _, entry := range snapshot.Videos() {
		if r.queue.IsProcessed(entry.Path) || r.queue.IsQueued(entry.Path) {
			continue
		}
		item := queue.NewFileItem(entry.Path, entry.Size, entry.Modified, r.thresholds)
		ok, err := r.queue.Enqueue(item)
		if err != nil {
			r.logger.Error("enqueue failed", logging.Error(err), logging.String(logging.FieldItem, entry.Path))
			continue
		}
		if ok {
			added++
		}
	}
	return added
}

func (r *Reconciler) reconcileFolders(snapshot catalog.Snapshot, backfill bool) int {
	now := r.now().UTC()
	added := 0

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, folder := range snapshot.Folders() {
		if len(folder.Files) == 0 {
			continue
		}
		if r.queue.IsProcessed(name) || r.queue.IsQueued(name) {
			delete(r.folders, name)
			continue
		}

		hash := folder.ContentHash()
		obs, seen := r.folders[name]
		if !seen || obs.Hash != hash {
			r.folders[name] = &folderObservation{Hash: hash, StableSince: now, LastCheck: now}
			if !backfill {
				continue
			}
			obs = r.folders[name]
		}
		obs.LastCheck = now

		if !backfill && now.Sub(obs.StableSince) < r.stabilityWindow {
			continue
		}

		item := queue.NewItem(name, folder.TotalSize, len(folder.Files), folder.LastModified, r.thresholds)
		ok, err := r.queue.Enqueue(item)
		if err != nil {
			r.logger.Error("enqueue failed", logging.Error(err), logging.String(logging.FieldItem, name))
			continue
		}
		if ok {
			added++
			delete(r.folders, name)
		}
	}
	return added
}
