package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anipipe/internal/catalog"
	"anipipe/internal/history"
	"anipipe/internal/ledger"
	"anipipe/internal/pipeline"
	"anipipe/internal/queue"
	"anipipe/internal/services"
)

type fakeLister struct {
	snapshot catalog.Snapshot
	err      error
}

func (f *fakeLister) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	return f.snapshot, f.err
}

type fakeFetcher struct {
	calls []string
	err   error
}

func (f *fakeFetcher) Download(ctx context.Context, repoPath, localDir string) (string, error) {
	f.calls = append(f.calls, repoPath)
	if f.err != nil {
		return "", f.err
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", err
	}
	local := filepath.Join(localDir, filepath.Base(repoPath))
	if err := os.WriteFile(local, []byte("video"), 0o644); err != nil {
		return "", err
	}
	return local, nil
}

type fakeEncoder struct {
	encodeCalls  []string
	extractCalls []string
	encodeErr    error
	extractErr   error
}

func (f *fakeEncoder) Encode(ctx context.Context, input, output string) error {
	f.encodeCalls = append(f.encodeCalls, input)
	if f.encodeErr != nil {
		return f.encodeErr
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("mkv"), 0o644)
}

func (f *fakeEncoder) ExtractSceneFrames(ctx context.Context, input, outputDir string) ([]string, error) {
	f.extractCalls = append(f.extractCalls, input)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	frame := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))+"_scene_0001.jpg")
	if err := os.WriteFile(frame, []byte("jpg"), 0o644); err != nil {
		return nil, err
	}
	return []string{frame}, nil
}

type fakeCompressor struct {
	err error
}

func (f *fakeCompressor) ConvertAll(ctx context.Context, frames []string, outputDir string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	var out []string
	for _, frame := range frames {
		webp := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(frame), ".jpg")+".webp")
		if err := os.WriteFile(webp, []byte("webp"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, webp)
	}
	return out, nil
}

type fakePublisher struct {
	uploads []string
	err     error
}

func (f *fakePublisher) Upload(ctx context.Context, localPath, repoPath string) error {
	f.uploads = append(f.uploads, repoPath)
	return f.err
}

type fakeBridge struct {
	pushes []string
	err    error
}

func (f *fakeBridge) Push(ctx context.Context, localPath, relPath string) error {
	f.pushes = append(f.pushes, relPath)
	return f.err
}

type harness struct {
	driver    *pipeline.Driver
	queue     *queue.Manager
	ledger    *ledger.Ledger
	history   *history.Store
	lister    *fakeLister
	fetcher   *fakeFetcher
	encoder   *fakeEncoder
	publisher *fakePublisher
	bridge    *fakeBridge
	workDir   string
}

func newHarness(t *testing.T, mutate func(*pipeline.Options)) *harness {
	t.Helper()
	stateDir := t.TempDir()
	workDir := t.TempDir()

	q, err := queue.NewManager(stateDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.NewLedger(stateDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := history.Open(stateDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { runs.Close() })

	h := &harness{
		queue:     q,
		ledger:    l,
		history:   runs,
		lister:    &fakeLister{},
		fetcher:   &fakeFetcher{},
		encoder:   &fakeEncoder{},
		publisher: &fakePublisher{},
		bridge:    &fakeBridge{},
		workDir:   workDir,
	}
	opts := pipeline.Options{
		Queue:        q,
		Ledger:       l,
		History:      runs,
		Lister:       h.lister,
		Fetcher:      h.fetcher,
		Encoder:      h.encoder,
		Frames:       &fakeCompressor{},
		Pub:          h.publisher,
		Bridge:       h.bridge,
		WorkDir:      workDir,
		MaxEpisodes:  30,
		HasFreeSpace: func(string, uint64) bool { return true },
	}
	if mutate != nil {
		mutate(&opts)
	}
	driver, err := pipeline.New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.driver = driver
	return h
}

func enqueueFile(t *testing.T, q *queue.Manager, identity string, size int64) {
	t.Helper()
	item := queue.NewFileItem(identity, size, time.Now(), queue.Thresholds{
		SmallFileCount: 10, SmallSizeBytes: 5 << 30,
		MediumFileCount: 50, MediumSizeBytes: 20 << 30,
	})
	if _, err := q.Enqueue(item); err != nil {
		t.Fatal(err)
	}
}

func TestProcessNextEmptyQueue(t *testing.T) {
	h := newHarness(t, nil)
	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("expected nil result for empty queue, got %+v", result)
	}
}

func TestSingleVideoHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if !h.queue.IsProcessed("show/ep01.mp4") {
		t.Fatal("completed item should join the processed set")
	}
	if result.Frames != 1 || result.Batches != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}

	// MKV per episode plus one WebP archive per batch.
	wantUploads := []string{"mkv/show/ep01.mkv", "webp/show/show_show_part01of01_webp.tar"}
	if len(h.publisher.uploads) != 2 {
		t.Fatalf("unexpected uploads: %v", h.publisher.uploads)
	}
	for i, want := range wantUploads {
		if h.publisher.uploads[i] != want {
			t.Fatalf("upload %d = %s, want %s", i, h.publisher.uploads[i], want)
		}
	}
	if len(h.bridge.pushes) != 1 {
		t.Fatalf("bridge should mirror the archive: %v", h.bridge.pushes)
	}
	if !h.ledger.IsBatchDone("show_show_part01of01") {
		t.Fatal("batch completion not recorded")
	}

	// The run history records which batches the pass produced.
	runs, err := h.history.ForIdentity(context.Background(), "show/ep01.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Batch != "show_show_part01of01" {
		t.Fatalf("unexpected history runs: %+v", runs)
	}

	// Work directory is cleaned after the item.
	entries, err := os.ReadDir(h.workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("work directory not cleaned: %v", entries)
	}
}

func TestFetchFailureSkipsTransformAndCleansUp(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = services.Wrap(services.ErrNotFound, "fetch", "download", "remote file missing", nil)
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if result.FailedStage != pipeline.StageFetch {
		t.Fatalf("failed stage = %s", result.FailedStage)
	}
	if result.Classification != "not_found" {
		t.Fatalf("classification = %s", result.Classification)
	}
	if len(h.encoder.encodeCalls) != 0 {
		t.Fatal("transform must not run after fetch failure")
	}
	if len(h.publisher.uploads) != 0 {
		t.Fatal("publish must not run after fetch failure")
	}

	// Failed items join the processed set (poison-item policy) but stay
	// visible as failed.
	if !h.queue.IsProcessed("show/ep01.mp4") {
		t.Fatal("failed identity should join processed set")
	}
	failed := h.queue.Items(queue.StatusFailed)
	if len(failed) != 1 || failed[0].ErrorMessage == "" {
		t.Fatalf("expected visible failed record, got %+v", failed)
	}

	entries, err := os.ReadDir(h.workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files not removed after failure: %v", entries)
	}
}

func TestDiskGateBlocksFetch(t *testing.T) {
	h := newHarness(t, func(opts *pipeline.Options) {
		opts.HasFreeSpace = func(string, uint64) bool { return false }
	})
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded() || result.Classification != "capacity" {
		t.Fatalf("expected capacity failure, got %+v", result)
	}
	if len(h.fetcher.calls) != 0 {
		t.Fatal("transfer must not start when the disk gate fails")
	}
}

func TestTransformFailureMarksFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.encoder.encodeErr = services.Wrap(services.ErrExternalTool, "transform", "encode", "boom", nil)
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedStage != pipeline.StageTransform {
		t.Fatalf("failed stage = %s", result.FailedStage)
	}
	if len(h.publisher.uploads) != 0 {
		t.Fatal("publish must not run after transform failure")
	}
}

func TestPublishFailureMarksFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.publisher.err = services.Wrap(services.ErrExternalTool, "publish", "upload", "hub 500", nil)
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.FailedStage != pipeline.StagePublish {
		t.Fatalf("failed stage = %s", result.FailedStage)
	}
	if h.ledger.IsBatchDone("show_show_part01of01") {
		t.Fatal("failed batch must not be recorded as done")
	}
}

func TestFolderItemProcessesAllEpisodes(t *testing.T) {
	h := newHarness(t, nil)
	h.lister.snapshot = catalog.Snapshot{Entries: []catalog.Entry{
		{Path: "pack/show/ep1.mp4", Size: 10 << 20},
		{Path: "pack/show/ep2.mp4", Size: 10 << 20},
	}}

	item := queue.NewItem("pack", 20<<20, 2, time.Now(), queue.Thresholds{
		SmallFileCount: 10, SmallSizeBytes: 5 << 30,
		MediumFileCount: 50, MediumSizeBytes: 20 << 30,
	})
	if _, err := h.queue.Enqueue(item); err != nil {
		t.Fatal(err)
	}

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(h.fetcher.calls) != 2 {
		t.Fatalf("expected 2 downloads, got %v", h.fetcher.calls)
	}
	if result.Frames != 2 {
		t.Fatalf("expected 2 frames, got %d", result.Frames)
	}
	if !h.ledger.IsSeriesDone("show") {
		t.Fatal("series completion not recorded")
	}
}

func TestCompletedBatchesAreSkipped(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ledger.MarkBatchDone("show_show_part01of01"); err != nil {
		t.Fatal(err)
	}
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(h.fetcher.calls) != 0 {
		t.Fatal("completed batch should not be re-fetched")
	}
	if result.Batches != 0 {
		t.Fatalf("expected 0 new batches, got %d", result.Batches)
	}
}

func TestFolderVanishedFromCatalog(t *testing.T) {
	h := newHarness(t, nil)
	h.lister.snapshot = catalog.Snapshot{}

	item := queue.NewItem("gone", 1<<20, 5, time.Now(), queue.Thresholds{
		SmallFileCount: 10, SmallSizeBytes: 5 << 30,
		MediumFileCount: 50, MediumSizeBytes: 20 << 30,
	})
	if _, err := h.queue.Enqueue(item); err != nil {
		t.Fatal(err)
	}

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded() || result.Classification != "not_found" {
		t.Fatalf("expected not_found failure, got %+v", result)
	}
}

func TestCancellationLeavesItemProcessing(t *testing.T) {
	h := newHarness(t, nil)
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := h.driver.ProcessNext(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != queue.StatusProcessing {
		t.Fatalf("expected processing status after cancellation, got %+v", result)
	}
	if h.queue.IsProcessed("show/ep01.mp4") {
		t.Fatal("interrupted item must not join the processed set")
	}
	// The record stays processing so the next startup reclaims it.
	snap := h.queue.Snapshot(0)
	if snap.Processing != 1 {
		t.Fatalf("expected 1 processing record, got %+v", snap)
	}
}

func TestBridgeFailureFailsPublish(t *testing.T) {
	h := newHarness(t, nil)
	h.bridge.err = errors.New("ssh: connection refused")
	enqueueFile(t, h.queue, "show/ep01.mp4", 50<<20)

	result, err := h.driver.ProcessNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded() || result.FailedStage != pipeline.StagePublish {
		t.Fatalf("expected publish failure, got %+v", result)
	}
}
