package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUsageReportsFreeSpace(t *testing.T) {
	usage, err := Usage(t.TempDir())
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage.Total == 0 {
		t.Fatal("expected non-zero total capacity")
	}
}

func TestHasFreeSpaceMissingPath(t *testing.T) {
	if HasFreeSpace(filepath.Join(t.TempDir(), "missing", "deeper"), 1) {
		t.Fatal("expected false for unstattable path")
	}
}

func TestNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if NonEmptyFile(empty) {
		t.Fatal("empty file should not count as non-empty")
	}
	if !NonEmptyFile(full) {
		t.Fatal("expected non-empty file to be detected")
	}
	if NonEmptyFile(filepath.Join(dir, "missing")) {
		t.Fatal("missing file should not count as non-empty")
	}
}

func TestRemoveQuiet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "victim")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	RemoveQuiet(path, "", filepath.Join(dir, "never-existed"))
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file removed")
	}
}
