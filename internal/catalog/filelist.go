package catalog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// fallbackSize is assumed for filelist entries without a size column. The
// manifest only carries paths, so priorities computed from it are coarse.
const fallbackSize = 100 << 20

// FilelistLister reads a plain-text manifest as a last-resort catalog source
// when the repository listing is unavailable. One path per line, optional
// size column, '#' starts a comment. Entries keep only the last two path
// segments so absolute NAS paths in old manifests map onto repository-style
// "series/file" identities.
type FilelistLister struct {
	Path string
}

// NewFilelistLister returns a lister backed by the manifest at path.
func NewFilelistLister(path string) *FilelistLister {
	return &FilelistLister{Path: path}
}

// Snapshot parses the manifest into catalog entries.
func (l *FilelistLister) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	file, err := os.Open(l.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open filelist: %w", err)
	}
	defer file.Close()

	now := time.Now().UTC()
	var snap Snapshot
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		path, size := splitManifestLine(line)
		if !IsVideo(path) {
			continue
		}
		snap.Entries = append(snap.Entries, Entry{
			Path:     normalizeManifestPath(path),
			Size:     size,
			Modified: now,
		})
	}
	if err := scanner.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("read filelist: %w", err)
	}
	return snap, nil
}

// splitManifestLine separates an optional trailing size column from the path.
// Paths may themselves contain spaces, so only a numeric final field counts.
func splitManifestLine(line string) (string, int64) {
	idx := strings.LastIndexAny(line, " \t")
	if idx > 0 {
		if size, err := strconv.ParseInt(strings.TrimSpace(line[idx+1:]), 10, 64); err == nil && size > 0 {
			return strings.TrimSpace(line[:idx]), size
		}
	}
	return line, fallbackSize
}

// normalizeManifestPath reduces a manifest path to "series/file". Manifests
// written on the source NAS carry absolute paths; the repository layout is
// flat one-directory-per-series.
func normalizeManifestPath(p string) string {
	cleaned := strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	parts := strings.Split(cleaned, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return cleaned
}
