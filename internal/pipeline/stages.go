package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"anipipe/internal/archive"
	"anipipe/internal/catalog"
	"anipipe/internal/fileutil"
	"anipipe/internal/ledger"
	"anipipe/internal/logging"
	"anipipe/internal/queue"
	"anipipe/internal/services"
)

// fetchSafetyMargin is added to a video's remote size when gating on free
// disk, covering encoder and frame intermediates.
const fetchSafetyMargin = 1 << 30

// video is one unit of fetch/transform work inside an item.
type video struct {
	Path string
	Size int64
}

func (d *Driver) runItem(ctx context.Context, item *queue.Item, itemWorkDir string, result *Result, logger *slog.Logger) error {
	videos, err := d.resolveVideos(ctx, item)
	if err != nil {
		result.FailedStage = StageFetch
		return err
	}
	if len(videos) == 0 {
		result.FailedStage = StageFetch
		return services.Wrap(services.ErrNotFound, StageFetch, "resolve videos",
			fmt.Sprintf("%s: no videos in catalog", item.Identity), nil)
	}

	folder := catalog.TopLevelDir(videos[0].Path)
	if folder == "" {
		folder = item.Identity
	}
	paths := make([]string, len(videos))
	sizes := make(map[string]int64, len(videos))
	for i, v := range videos {
		paths[i] = v.Path
		sizes[v.Path] = v.Size
	}

	batches := ledger.Plan(folder, paths, d.maxEpisodes)
	for _, batch := range batches {
		if d.progress.IsBatchDone(batch.Name) {
			logger.Info("skipping completed batch",
				logging.String(logging.FieldBatch, batch.Name),
				logging.String(logging.FieldEventType, "batch_skipped"),
			)
			continue
		}
		if err := d.runBatch(ctx, batch, sizes, itemWorkDir, result, logger); err != nil {
			return err
		}
		result.Batches++
		result.BatchNames = append(result.BatchNames, batch.Name)
	}

	seriesSeen := make(map[string]struct{})
	for _, batch := range batches {
		seriesSeen[batch.Series] = struct{}{}
	}
	for series := range seriesSeen {
		if err := d.progress.MarkSeriesDone(series); err != nil {
			logger.Warn("failed to persist series completion", logging.Error(err))
		}
	}
	return nil
}

// resolveVideos expands an item into its video files. Single-file items are
// their own unit; folder items are resolved against a fresh catalog snapshot.
func (d *Driver) resolveVideos(ctx context.Context, item *queue.Item) ([]video, error) {
	if item.FileCount <= 1 && catalog.IsVideo(item.Identity) {
		return []video{{Path: item.Identity, Size: item.Size}}, nil
	}

	snapshot, err := d.lister.Snapshot(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, StageFetch, "list catalog", item.Identity, err)
	}
	folder, ok := snapshot.Folders()[item.Identity]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, StageFetch, "resolve folder",
			fmt.Sprintf("%s: folder no longer in catalog", item.Identity), nil)
	}
	videos := make([]video, 0, len(folder.Files))
	for _, entry := range folder.Files {
		videos = append(videos, video{Path: entry.Path, Size: entry.Size})
	}
	return videos, nil
}

func (d *Driver) runBatch(ctx context.Context, batch ledger.Batch, sizes map[string]int64, itemWorkDir string, result *Result, logger *slog.Logger) error {
	batchLogger := logger.With(logging.String(logging.FieldBatch, batch.Name))
	batchLogger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		slog.Int("videos", len(batch.Videos)),
		slog.Int("part", batch.Index),
		slog.Int("parts_total", batch.Total),
	)

	batchDir := filepath.Join(itemWorkDir, batch.Name)
	downloadDir := filepath.Join(batchDir, "videos")
	encodedDir := filepath.Join(batchDir, "encoded")
	rawFramesDir := filepath.Join(batchDir, "frames")
	webpDir := filepath.Join(batchDir, "webp")

	for _, videoPath := range batch.Videos {
		if err := ctx.Err(); err != nil {
			result.FailedStage = StageFetch
			return err
		}
		if err := d.processVideo(ctx, videoPath, sizes[videoPath], batch, downloadDir, encodedDir, rawFramesDir, webpDir, result); err != nil {
			return err
		}
	}

	if err := d.publishBatch(ctx, batch, batchDir, webpDir, result); err != nil {
		return err
	}

	if err := d.progress.MarkBatchDone(batch.Name); err != nil {
		result.FailedStage = StagePublish
		return fmt.Errorf("persist batch completion: %w", err)
	}
	fileutil.RemoveQuiet(batchDir)
	batchLogger.Info("batch completed", logging.String(logging.FieldEventType, "batch_complete"))
	return nil
}

func (d *Driver) processVideo(ctx context.Context, videoPath string, size int64, batch ledger.Batch, downloadDir, encodedDir, rawFramesDir, webpDir string, result *Result) error {
	// Fetch: gate on disk before the transfer consumes it.
	required := uint64(size) + fetchSafetyMargin
	if d.minFreeBytes > required {
		required = d.minFreeBytes
	}
	if !d.hasFreeSpace(d.workDir, required) {
		result.FailedStage = StageFetch
		return services.Wrap(services.ErrCapacity, StageFetch, "disk gate",
			fmt.Sprintf("%s: need %d bytes free", videoPath, required), nil)
	}

	localPath, err := d.fetcher.Download(ctx, videoPath, downloadDir)
	if err != nil {
		result.FailedStage = StageFetch
		fileutil.RemoveQuiet(downloadDir)
		return err
	}
	result.BytesIn += size

	// Transform: AV1/MKV encode, then per-scene frames compressed to WebP.
	encodedPath := filepath.Join(encodedDir, mkvName(videoPath))
	if err := d.encoder.Encode(ctx, localPath, encodedPath); err != nil {
		result.FailedStage = StageTransform
		return err
	}
	rawFrames, err := d.encoder.ExtractSceneFrames(ctx, localPath, rawFramesDir)
	if err != nil {
		result.FailedStage = StageTransform
		return err
	}
	webpFrames, err := d.frames.ConvertAll(ctx, rawFrames, webpDir)
	if err != nil {
		result.FailedStage = StageTransform
		return err
	}
	result.Frames += len(webpFrames)

	// Publish the episode's MKV; the WebP archive goes out per batch.
	mkvRepoPath := path.Join("mkv", batch.Series, mkvName(videoPath))
	if err := d.pub.Upload(ctx, encodedPath, mkvRepoPath); err != nil {
		result.FailedStage = StagePublish
		return err
	}
	if encodedSize, err := fileutil.FileSize(encodedPath); err == nil {
		result.BytesOut += encodedSize
	}

	// Per-video intermediates are gone before the next fetch.
	fileutil.RemoveQuiet(localPath, encodedPath)
	for _, frame := range rawFrames {
		fileutil.RemoveQuiet(frame)
	}
	return nil
}

func (d *Driver) publishBatch(ctx context.Context, batch ledger.Batch, batchDir, webpDir string, result *Result) error {
	archivePath := filepath.Join(batchDir, archive.Name(batch.Name))
	if err := archive.Pack(webpDir, archivePath); err != nil {
		result.FailedStage = StageTransform
		return err
	}
	if _, err := archive.Verify(archivePath); err != nil {
		result.FailedStage = StageTransform
		return services.Wrap(services.ErrExternalTool, StageTransform, "verify archive", batch.Name, err)
	}

	repoPath := path.Join("webp", batch.Series, archive.Name(batch.Name))
	if err := d.pub.Upload(ctx, archivePath, repoPath); err != nil {
		result.FailedStage = StagePublish
		return err
	}
	if archiveSize, err := fileutil.FileSize(archivePath); err == nil {
		result.BytesOut += archiveSize
	}

	if d.bridge != nil {
		if err := d.bridge.Push(ctx, archivePath, repoPath); err != nil {
			result.FailedStage = StagePublish
			return err
		}
	}
	return nil
}

func mkvName(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".mkv"
}

func sanitizePathComponent(identity string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return strings.Trim(replacer.Replace(identity), "_")
}
