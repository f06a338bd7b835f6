package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"anipipe/internal/config"
	"anipipe/internal/logging"
	"anipipe/internal/worker"
)

// Daemon wraps the worker runner with single-instance enforcement: a second
// process pointed at the same state directory refuses to start.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *worker.Runner

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon around an assembled runner.
func New(cfg *config.Config, runner *worker.Runner, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("daemon requires config and runner")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.StateDir, "anipipe.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		runner:   runner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another anipipe instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.runner.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start worker: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("daemon started", slog.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.runner.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether the daemon holds the lock and its loops are live.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
