package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"anipipe/internal/catalog"
	"anipipe/internal/config"
	"anipipe/internal/daemon"
	"anipipe/internal/discovery"
	"anipipe/internal/history"
	"anipipe/internal/ledger"
	"anipipe/internal/pipeline"
	"anipipe/internal/queue"
	"anipipe/internal/services/ffmpeg"
	"anipipe/internal/services/modelscope"
	"anipipe/internal/services/transport"
	"anipipe/internal/services/webp"
	"anipipe/internal/worker"
)

// stateStores bundles the persisted state a read-only command needs.
type stateStores struct {
	queue   *queue.Manager
	ledger  *ledger.Ledger
	history *history.Store
}

func openState(cfg *config.Config, logger *slog.Logger) (*stateStores, error) {
	q, err := queue.NewManager(cfg.Paths.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue state: %w", err)
	}
	l, err := ledger.NewLedger(cfg.Paths.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	h, err := history.Open(cfg.Paths.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return &stateStores{queue: q, ledger: l, history: h}, nil
}

func (s *stateStores) Close() error {
	if s == nil || s.history == nil {
		return nil
	}
	return s.history.Close()
}

// runtime is the fully assembled processing stack.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	stores     *stateStores
	client     *modelscope.Client
	lister     catalog.Lister
	reconciler *discovery.Reconciler
	driver     *pipeline.Driver
	runner     *worker.Runner
	daemon     *daemon.Daemon
}

func buildRuntime(cfg *config.Config, logger *slog.Logger, disableDiscovery bool) (*runtime, error) {
	stores, err := openState(cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := modelscope.New(modelscope.Config{
		Binary:          cfg.ModelScopeBinary(),
		Token:           cfg.Repository.Token,
		InputRepo:       cfg.Repository.InputRepo,
		OutputRepo:      cfg.Repository.OutputRepo,
		CacheDir:        filepath.Join(cfg.Paths.WorkDir, "cache"),
		ListTimeout:     time.Duration(cfg.Repository.ListTimeout) * time.Second,
		DownloadTimeout: time.Duration(cfg.Repository.DownloadTimeout) * time.Second,
		UploadTimeout:   time.Duration(cfg.Repository.UploadTimeout) * time.Second,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("configure dataset client: %w", err)
	}

	var lister catalog.Lister = modelscope.NewLister(client)
	if cfg.Discovery.FilelistPath != "" {
		// A local manifest override skips hub round-trips entirely.
		lister = catalog.NewFilelistLister(cfg.Discovery.FilelistPath)
	}

	encoder, err := ffmpeg.New(ffmpeg.Config{
		Binary:         cfg.Encoder.Binary,
		EncodeArgs:     cfg.Encoder.Args,
		Timeout:        time.Duration(cfg.Encoder.Timeout) * time.Second,
		SceneThreshold: cfg.Encoder.SceneThreshold,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("configure encoder: %w", err)
	}

	frames, err := webp.New(webp.Config{
		Binary:  cfg.Frames.CwebpBinary,
		Quality: cfg.Frames.Quality,
		MaxEdge: cfg.Frames.MaxEdge,
		Timeout: time.Duration(cfg.Frames.Timeout) * time.Second,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("configure frame compressor: %w", err)
	}

	var bridge pipeline.RemoteCopier
	if cfg.Transport.Enabled {
		b, err := transport.New(transport.Config{
			Host:    cfg.Transport.RemoteHost,
			User:    cfg.Transport.RemoteUser,
			BaseDir: cfg.Transport.RemoteDir,
			Timeout: time.Duration(cfg.Transport.Timeout) * time.Second,
			Retries: cfg.Transport.Retries,
		})
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("configure transport bridge: %w", err)
		}
		bridge = b
	}

	driver, err := pipeline.New(pipeline.Options{
		Queue:        stores.queue,
		Ledger:       stores.ledger,
		History:      stores.history,
		Lister:       lister,
		Fetcher:      client,
		Encoder:      encoder,
		Frames:       frames,
		Pub:          client,
		Bridge:       bridge,
		Logger:       logger,
		WorkDir:      cfg.Paths.WorkDir,
		MinFreeBytes: uint64(cfg.Worker.MinFreeSpaceGiB) << 30,
		MaxEpisodes:  cfg.Worker.MaxEpisodesPerBatch,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("assemble pipeline: %w", err)
	}

	reconciler, err := discovery.NewReconciler(discovery.Options{
		Lister:          lister,
		Queue:           stores.queue,
		Thresholds:      thresholdsFromConfig(cfg),
		Granularity:     cfg.Discovery.Granularity,
		StabilityWindow: time.Duration(cfg.Discovery.StabilityWindow) * time.Second,
		Logger:          logger,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("assemble discovery: %w", err)
	}

	runner, err := worker.New(worker.Options{
		Reconciler:       reconciler,
		Driver:           driver,
		Queue:            stores.queue,
		Logger:           logger,
		PollInterval:     time.Duration(cfg.Discovery.PollInterval) * time.Second,
		IdleSleep:        time.Duration(cfg.Worker.IdleSleep) * time.Second,
		StatusInterval:   time.Duration(cfg.Worker.StatusInterval) * time.Second,
		StopTimeout:      time.Duration(cfg.Worker.StopTimeout) * time.Second,
		DisableDiscovery: disableDiscovery,
		InitialBackfill:  cfg.Discovery.InitialBackfill,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("assemble worker: %w", err)
	}

	d, err := daemon.New(cfg, runner, logger)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("assemble daemon: %w", err)
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		stores:     stores,
		client:     client,
		lister:     lister,
		reconciler: reconciler,
		driver:     driver,
		runner:     runner,
		daemon:     d,
	}, nil
}

func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.daemon != nil {
		_ = r.daemon.Close()
	}
	return r.stores.Close()
}

func thresholdsFromConfig(cfg *config.Config) queue.Thresholds {
	return queue.Thresholds{
		SmallFileCount:  cfg.Discovery.SmallFileCount,
		SmallSizeBytes:  int64(cfg.Discovery.SmallSizeGiB) << 30,
		MediumFileCount: cfg.Discovery.MediumFileCount,
		MediumSizeBytes: int64(cfg.Discovery.MediumSizeGiB) << 30,
	}
}
