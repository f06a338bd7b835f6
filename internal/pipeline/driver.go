package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"anipipe/internal/catalog"
	"anipipe/internal/fileutil"
	"anipipe/internal/history"
	"anipipe/internal/ledger"
	"anipipe/internal/logging"
	"anipipe/internal/queue"
	"anipipe/internal/services"
)

// Fetcher downloads one repository file into a local directory and returns
// the local path.
type Fetcher interface {
	Download(ctx context.Context, repoPath, localDir string) (string, error)
}

// Encoder transcodes videos and extracts per-scene frames.
type Encoder interface {
	Encode(ctx context.Context, input, output string) error
	ExtractSceneFrames(ctx context.Context, input, outputDir string) ([]string, error)
}

// FrameCompressor converts extracted frames to WebP.
type FrameCompressor interface {
	ConvertAll(ctx context.Context, frames []string, outputDir string) ([]string, error)
}

// Publisher uploads artifacts to the output dataset repository.
type Publisher interface {
	Upload(ctx context.Context, localPath, repoPath string) error
}

// RemoteCopier mirrors artifacts onto a remote host. Optional.
type RemoteCopier interface {
	Push(ctx context.Context, localPath, relPath string) error
}

// Driver pulls items through fetch, transform, publish, and cleanup. Stage
// failures are item-level: the item ends failed and the run continues.
type Driver struct {
	queue    *queue.Manager
	progress *ledger.Ledger
	runs     *history.Store
	lister   catalog.Lister
	fetcher  Fetcher
	encoder  Encoder
	frames   FrameCompressor
	pub      Publisher
	bridge   RemoteCopier
	logger   *slog.Logger

	workDir      string
	minFreeBytes uint64
	maxEpisodes  int
	hasFreeSpace func(path string, min uint64) bool
	now          func() time.Time
}

// Options carries driver construction parameters.
type Options struct {
	Queue   *queue.Manager
	Ledger  *ledger.Ledger
	History *history.Store
	Lister  catalog.Lister
	Fetcher Fetcher
	Encoder Encoder
	Frames  FrameCompressor
	Pub     Publisher
	// Bridge is nil when the remote mirror is disabled.
	Bridge RemoteCopier
	Logger *slog.Logger

	WorkDir      string
	MinFreeBytes uint64
	MaxEpisodes  int
	// HasFreeSpace overrides the disk gate, for tests.
	HasFreeSpace func(path string, min uint64) bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New constructs a pipeline driver.
func New(opts Options) (*Driver, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("queue manager is required")
	case opts.Ledger == nil:
		return nil, errors.New("ledger is required")
	case opts.Lister == nil:
		return nil, errors.New("catalog lister is required")
	case opts.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case opts.Encoder == nil:
		return nil, errors.New("encoder is required")
	case opts.Frames == nil:
		return nil, errors.New("frame compressor is required")
	case opts.Pub == nil:
		return nil, errors.New("publisher is required")
	case opts.WorkDir == "":
		return nil, errors.New("work directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	maxEpisodes := opts.MaxEpisodes
	if maxEpisodes < 1 {
		maxEpisodes = 1
	}
	hasFreeSpace := opts.HasFreeSpace
	if hasFreeSpace == nil {
		hasFreeSpace = fileutil.HasFreeSpace
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Driver{
		queue:        opts.Queue,
		progress:     opts.Ledger,
		runs:         opts.History,
		lister:       opts.Lister,
		fetcher:      opts.Fetcher,
		encoder:      opts.Encoder,
		frames:       opts.Frames,
		pub:          opts.Pub,
		bridge:       opts.Bridge,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		workDir:      opts.WorkDir,
		minFreeBytes: opts.MinFreeBytes,
		maxEpisodes:  maxEpisodes,
		hasFreeSpace: hasFreeSpace,
		now:          now,
	}, nil
}

// ProcessNext claims and processes one pending item. Returns nil when the
// queue has no pending work.
func (d *Driver) ProcessNext(ctx context.Context) (*Result, error) {
	item, err := d.queue.Dequeue()
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	result := d.process(ctx, item)
	return &result, nil
}

func (d *Driver) process(ctx context.Context, item *queue.Item) Result {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(services.WithItem(ctx, item.Identity), requestID)
	itemLogger := d.logger.With(
		logging.String(logging.FieldItem, item.Identity),
		logging.String(logging.FieldCorrelationID, requestID),
	)

	result := Result{
		Identity:  item.Identity,
		RequestID: requestID,
		StartedAt: d.now().UTC(),
	}
	itemLogger.Info("item started",
		logging.String(logging.FieldEventType, "item_start"),
		slog.Int("priority", item.Priority),
		slog.Int64("size", item.Size),
	)

	itemWorkDir := filepath.Join(d.workDir, sanitizePathComponent(item.Identity))
	runErr := d.runItem(ctx, item, itemWorkDir, &result, itemLogger)

	// Cleanup always runs, success or failure.
	fileutil.RemoveQuiet(itemWorkDir)

	result.FinishedAt = d.now().UTC()
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		// Shutdown mid-item: leave the record processing so the next run
		// reclaims it to pending and retries from scratch.
		result.Status = queue.StatusProcessing
		result.Reason = runErr.Error()
		itemLogger.Info("item interrupted, will retry next run",
			logging.String(logging.FieldEventType, "item_interrupted"),
			logging.String(logging.FieldStage, result.FailedStage),
		)
		return result
	}
	if runErr != nil {
		result.Status = queue.StatusFailed
		result.Reason = runErr.Error()
		result.Classification = services.Classify(runErr)
		if markErr := d.queue.MarkFailed(item.Identity, result.Reason); markErr != nil {
			itemLogger.Error("failed to persist failed outcome", logging.Error(markErr))
		}
		itemLogger.Error("item failed",
			logging.String(logging.FieldEventType, "item_failed"),
			logging.String(logging.FieldStage, result.FailedStage),
			logging.String(logging.FieldErrorHint, result.Classification),
			logging.Error(runErr),
			logging.Duration("item_duration", result.Duration()),
		)
	} else {
		result.Status = queue.StatusCompleted
		if markErr := d.queue.MarkCompleted(item.Identity); markErr != nil {
			itemLogger.Error("failed to persist completed outcome", logging.Error(markErr))
		}
		itemLogger.Info("item completed",
			logging.String(logging.FieldEventType, "item_complete"),
			slog.Int("batches", result.Batches),
			slog.Int("frames", result.Frames),
			logging.Duration("item_duration", result.Duration()),
		)
	}

	d.recordRun(ctx, result, itemLogger)
	return result
}

func (d *Driver) recordRun(ctx context.Context, result Result, logger *slog.Logger) {
	if d.runs == nil {
		return
	}
	run := history.Run{
		RequestID:    result.RequestID,
		Identity:     result.Identity,
		Batch:        strings.Join(result.BatchNames, ","),
		Status:       string(result.Status),
		ErrorMessage: result.Reason,
		Frames:       result.Frames,
		BytesIn:      result.BytesIn,
		BytesOut:     result.BytesOut,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	if err := d.runs.RecordRun(ctx, run); err != nil {
		logger.Warn("failed to record run history", logging.Error(err))
	}
}
