package catalog

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry describes one remote file: a stable repository-relative path plus
// the size and modification time reported by the catalog source.
type Entry struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Folder aggregates the entries under one top-level directory.
type Folder struct {
	Name         string
	Files        []Entry
	TotalSize    int64
	LastModified time.Time
}

// Snapshot is one observation of the remote repository. An empty snapshot is
// valid and means no work; listing failures surface as errors from the
// Lister instead.
type Snapshot struct {
	Entries []Entry
}

// Lister produces catalog snapshots. Implementations wrap an external
// listing operation that may fail or time out.
type Lister interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".flv":  {},
	".webm": {},
	".m4v":  {},
	".rmvb": {},
}

// IsVideo reports whether a path has a recognized video extension.
func IsVideo(p string) bool {
	_, ok := videoExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// Videos returns the snapshot entries with video extensions, in path order.
func (s Snapshot) Videos() []Entry {
	var out []Entry
	for _, entry := range s.Entries {
		if IsVideo(entry.Path) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Folders groups video entries by their first path segment. Files at the
// repository root have no folder and are skipped.
func (s Snapshot) Folders() map[string]*Folder {
	folders := make(map[string]*Folder)
	for _, entry := range s.Videos() {
		name := TopLevelDir(entry.Path)
		if name == "" {
			continue
		}
		folder, ok := folders[name]
		if !ok {
			folder = &Folder{Name: name}
			folders[name] = folder
		}
		folder.Files = append(folder.Files, entry)
		folder.TotalSize += entry.Size
		if entry.Modified.After(folder.LastModified) {
			folder.LastModified = entry.Modified
		}
	}
	return folders
}

// TopLevelDir returns the first segment of a repository-relative path, or ""
// for root-level files.
func TopLevelDir(p string) string {
	cleaned := strings.Trim(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
	idx := strings.IndexByte(cleaned, '/')
	if idx <= 0 {
		return ""
	}
	return cleaned[:idx]
}

// ContentHash derives a folder's content fingerprint from its sorted
// (path, size) pairs. Modification times are deliberately excluded: object
// stores rewrite them on re-upload, and the gate only cares whether the file
// set itself is still changing.
func (f *Folder) ContentHash() string {
	files := make([]Entry, len(f.Files))
	copy(files, f.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var b strings.Builder
	for i, file := range files {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(file.Path)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(file.Size, 10))
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
