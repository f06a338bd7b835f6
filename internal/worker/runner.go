package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"anipipe/internal/logging"
	"anipipe/internal/pipeline"
	"anipipe/internal/queue"
)

// Processor claims and processes one queue item per call, returning nil when
// the queue is drained. Satisfied by pipeline.Driver.
type Processor interface {
	ProcessNext(ctx context.Context) (*pipeline.Result, error)
}

// Discoverer runs one catalog reconcile pass and reports how many items it
// enqueued. Satisfied by discovery.Reconciler.
type Discoverer interface {
	Reconcile(ctx context.Context, backfill bool) int
}

// Runner owns the background loops of a processing run: discovery polls the
// catalog, processing drains the queue one item at a time, and the status
// loop emits periodic queue summaries.
type Runner struct {
	reconciler Discoverer
	driver     Processor
	queue      *queue.Manager
	logger     *slog.Logger

	pollInterval   time.Duration
	idleSleep      time.Duration
	statusInterval time.Duration
	stopTimeout    time.Duration
	// discoveryOff disables the discovery loop; the run drains what is
	// already queued.
	discoveryOff bool
	// initialBackfill makes the first discovery pass bypass the folder
	// stability gate.
	initialBackfill bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Options carries runner construction parameters.
type Options struct {
	Reconciler Discoverer
	Driver     Processor
	Queue      *queue.Manager
	Logger     *slog.Logger

	PollInterval     time.Duration
	IdleSleep        time.Duration
	StatusInterval   time.Duration
	StopTimeout      time.Duration
	DisableDiscovery bool
	InitialBackfill  bool
}

// New constructs a runner.
func New(opts Options) (*Runner, error) {
	if opts.Driver == nil {
		return nil, errors.New("pipeline driver is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("queue manager is required")
	}
	if opts.Reconciler == nil && !opts.DisableDiscovery {
		return nil, errors.New("reconciler is required when discovery is enabled")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	idleSleep := opts.IdleSleep
	if idleSleep <= 0 {
		idleSleep = 10 * time.Second
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &Runner{
		reconciler:      opts.Reconciler,
		driver:          opts.Driver,
		queue:           opts.Queue,
		logger:          logging.NewComponentLogger(logger, "worker"),
		pollInterval:    pollInterval,
		idleSleep:       idleSleep,
		statusInterval:  opts.StatusInterval,
		stopTimeout:     stopTimeout,
		discoveryOff:    opts.DisableDiscovery,
		initialBackfill: opts.InitialBackfill,
	}, nil
}

// Start begins background processing. Crashed-run processing records are
// reclaimed to pending before any loop starts.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("runner already running")
	}

	reclaimed, err := r.queue.ReclaimProcessing()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if reclaimed > 0 {
		r.logger.Info("reclaimed interrupted items",
			slog.Int("count", reclaimed),
			logging.String(logging.FieldEventType, "queue_reclaimed"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	loops := 1
	if !r.discoveryOff {
		loops++
	}
	if r.statusInterval > 0 {
		loops++
	}
	r.wg.Add(loops)
	r.mu.Unlock()

	go r.runProcessing(runCtx)
	if !r.discoveryOff {
		go r.runDiscovery(runCtx)
	}
	if r.statusInterval > 0 {
		go r.runStatus(runCtx)
	}
	return nil
}

// Stop terminates background processing and waits for the loops to finish,
// up to the stop timeout. The in-flight item, if any, sees its context
// canceled.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.stopTimeout):
		r.logger.Warn("loops did not stop within timeout, abandoning wait",
			logging.Duration("stop_timeout", r.stopTimeout),
			logging.String(logging.FieldEventType, "shutdown_timeout"),
		)
	}
}

// Running reports whether the background loops are active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) runDiscovery(ctx context.Context) {
	defer r.wg.Done()

	// First pass immediately so a fresh start does not idle a full interval.
	r.reconciler.Reconcile(ctx, r.initialBackfill)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pollInterval):
		}
		r.reconciler.Reconcile(ctx, false)
	}
}

func (r *Runner) runProcessing(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := r.driver.ProcessNext(ctx)
		if err != nil {
			r.logger.Error("failed to claim next queue item",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check state directory access"),
			)
			r.waitOrShutdown(ctx, r.idleSleep)
			continue
		}
		if result == nil {
			r.waitOrShutdown(ctx, r.idleSleep)
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Runner) runStatus(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.statusInterval):
		}
		snap := r.queue.Snapshot(0)
		r.logger.Info("queue status",
			slog.Int("pending", snap.QueueSize),
			slog.Int("processing", snap.Processing),
			slog.Int("processed_total", snap.ProcessedCount),
			logging.String(logging.FieldEventType, "status_report"),
		)
	}
}

func (r *Runner) waitOrShutdown(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
