package fileutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DiskUsage reports disk capacity for the filesystem containing a path, in bytes.
type DiskUsage struct {
	Total uint64
	Free  uint64
}

// Usage returns the disk usage for the filesystem containing path.
func Usage(path string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	blockSize := uint64(stat.Bsize)
	return DiskUsage{
		Total: stat.Blocks * blockSize,
		Free:  stat.Bavail * blockSize,
	}, nil
}

// HasFreeSpace reports whether the filesystem containing path has at least
// min bytes available. Errors resolve to false: a path we cannot stat is a
// path we cannot safely write to.
func HasFreeSpace(path string, min uint64) bool {
	usage, err := Usage(path)
	if err != nil {
		return false
	}
	return usage.Free >= min
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// RemoveQuiet removes a file or directory tree, ignoring errors. Used by
// cleanup paths where a leftover temp file is preferable to masking the
// original failure.
func RemoveQuiet(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		_ = os.RemoveAll(path)
	}
}

// FileSize returns the size of a regular file, or 0 with an error when the
// file is missing or not regular.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

// NonEmptyFile reports whether path exists as a regular file with size > 0.
func NonEmptyFile(path string) bool {
	size, err := FileSize(path)
	return err == nil && size > 0
}
