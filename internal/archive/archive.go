package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"anipipe/internal/fileutil"
	"anipipe/internal/services"
)

// tarOverheadBytes pads the size estimate for tar headers and block padding.
const tarOverheadBytes = 1 << 20

// EstimateSize returns the total byte size of regular files under dir plus
// tar overhead.
func EstimateSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("estimate archive size: %w", err)
	}
	return total + tarOverheadBytes, nil
}

// Pack writes every regular file under sourceDir into a tar archive at
// archivePath, with paths relative to sourceDir. The destination filesystem
// must have room for the estimated archive size; the estimate gate runs
// before any write. An empty source directory is an error: packing nothing
// means an earlier stage silently produced nothing.
func Pack(sourceDir, archivePath string) error {
	estimated, err := EstimateSize(sourceDir)
	if err != nil {
		return err
	}
	if estimated <= tarOverheadBytes {
		return services.Wrap(services.ErrValidation, "transform", "archive",
			fmt.Sprintf("%s: nothing to pack", sourceDir), nil)
	}
	destDir := filepath.Dir(archivePath)
	if err := fileutil.EnsureDir(destDir); err != nil {
		return err
	}
	if !fileutil.HasFreeSpace(destDir, uint64(estimated)) {
		return services.Wrap(services.ErrCapacity, "transform", "archive",
			fmt.Sprintf("need %d bytes free in %s", estimated, destDir), nil)
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	writer := tar.NewWriter(file)

	walkErr := filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := writer.WriteHeader(header); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(writer, src)
		src.Close()
		return err
	})

	closeErr := writer.Close()
	syncErr := file.Close()
	if walkErr != nil || closeErr != nil || syncErr != nil {
		fileutil.RemoveQuiet(archivePath)
		return fmt.Errorf("write archive: %w", errors.Join(walkErr, closeErr, syncErr))
	}
	if !fileutil.NonEmptyFile(archivePath) {
		fileutil.RemoveQuiet(archivePath)
		return services.Wrap(services.ErrExternalTool, "transform", "archive",
			fmt.Sprintf("%s: archive is empty", filepath.Base(archivePath)), nil)
	}
	return nil
}

// Verify opens the archive and counts its members, guarding against
// truncated writes before upload.
func Verify(archivePath string) (int, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	reader := tar.NewReader(file)
	count := 0
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read archive: %w", err)
		}
		if header.Typeflag == tar.TypeReg {
			count++
		}
	}
	if count == 0 {
		return 0, errors.New("archive contains no files")
	}
	return count, nil
}

// Name builds the archive file name for a batch: "<batch>_webp.tar".
func Name(batch string) string {
	clean := strings.TrimSpace(batch)
	if clean == "" {
		clean = "batch"
	}
	return clean + "_webp.tar"
}
